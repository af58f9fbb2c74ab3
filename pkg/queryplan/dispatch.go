package queryplan

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DeviceResponder performs the actual device round-trip for a single
// device: sending the plan and awaiting whatever the device returns
// (typically a Time Capsule, created and stored by the caller). It must
// respect ctx's deadline: Dispatch waits for every responder call to
// return, so a responder that ignores the deadline holds up the round.
type DeviceResponder func(ctx context.Context, deviceID uuid.UUID, plan QueryPlan) error

// Dispatch fans a signed plan out to eligibleDeviceIds, giving each device
// up to timeout to respond (spec §4.4 "dispatch(planId, eligibleDeviceIds,
// timeout)"). A device whose responder returns an error, or returns after
// its timeout has passed, is marked TIMED_OUT and the plan proceeds with
// whatever responses arrived from the others.
func (e *Engine) Dispatch(ctx context.Context, plan QueryPlan, eligibleDeviceIDs []uuid.UUID, timeout time.Duration, respond DeviceResponder) (DispatchResult, error) {
	if err := e.VerifyPlan(plan); err != nil {
		return DispatchResult{}, err
	}

	result := DispatchResult{PlanID: plan.ID, Devices: make(map[uuid.UUID]DeviceStatus, len(eligibleDeviceIDs))}
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, deviceID := range eligibleDeviceIDs {
		deviceID := deviceID
		mu.Lock()
		result.Devices[deviceID] = DeviceDispatched
		mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			deviceCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			err := respond(deviceCtx, deviceID, plan)

			mu.Lock()
			defer mu.Unlock()
			if err != nil || deviceCtx.Err() != nil {
				result.Devices[deviceID] = DeviceTimedOut
				return
			}
			result.Devices[deviceID] = DeviceResponded
		}()
	}
	wg.Wait()

	if err := e.store.UpdateStatus(ctx, plan.ID, StatusDispatched, plan.Version); err != nil {
		return result, err
	}

	return result, nil
}
