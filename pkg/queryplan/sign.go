package queryplan

import (
	"fmt"

	"github.com/datasovereign/platform-core/internal/cryptoutil"
)

// SignablePayload builds the deterministic string every plan signature
// covers: `id|requestId|contractId|scopeHash|allowedTransforms|
// outputRestrictions|permittedFields|compensation|ttl` (spec §4.4). The
// list fields are sorted before joining so permutation of the same set
// never changes the signed bytes.
func SignablePayload(p QueryPlan) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s|%f|%d",
		p.ID, p.RequestID, p.ContractID, p.ScopeHash,
		cryptoutil.SortedJoin(p.AllowedTransforms, ","),
		cryptoutil.SortedJoin(p.OutputRestrictions, ","),
		cryptoutil.SortedJoin(p.PermittedFields, ","),
		p.Compensation, p.TTLMinutes,
	)
}

// Sign produces the Ed25519 hex signature over p's signable payload under
// kp, and returns p with Signature and SigningKeyID populated.
func Sign(p QueryPlan, kp *cryptoutil.Ed25519KeyPair) QueryPlan {
	p.SigningKeyID = kp.KeyID
	p.Signature = kp.SignHex([]byte(SignablePayload(p)))
	return p
}

// Verify reports whether p's signature is valid under the key identified
// by p.SigningKeyID, looked up in ring. Verification is mandatory before
// dispatch and before any device acts on the plan (spec §4.4).
func Verify(p QueryPlan, ring *cryptoutil.KeyRing) bool {
	kp, ok := ring.Get(p.SigningKeyID)
	if !ok {
		return false
	}
	return cryptoutil.VerifyEd25519Hex(kp.PublicKey, []byte(SignablePayload(p)), p.Signature)
}
