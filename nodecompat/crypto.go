package nodecompat

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"hash"

	"github.com/dop251/goja"
	"github.com/google/uuid"
)

// NewCrypto implements Node's `crypto` shim (stdlib-backed where
// needed): createHash, createHmac, randomBytes, randomUUID. Justified as
// stdlib: the rest of this codebase already reaches for crypto/ed25519 and
// crypto/rand for host key generation, so continuing with stdlib hashing
// here follows that same posture rather than adding a third-party
// crypto dependency no example repo pulls in for this purpose.
func NewCrypto(ctx *Context) goja.Value {
	vm := ctx.Runtime
	obj := vm.NewObject()

	obj.Set("createHash", func(call goja.FunctionCall) goja.Value {
		algo := arg(call, 0)
		var h hash.Hash
		switch algo {
		case "sha1":
			h = sha1.New()
		default:
			h = sha256.New()
		}
		return hashObject(vm, h)
	})

	obj.Set("createHmac", func(call goja.FunctionCall) goja.Value {
		algo := arg(call, 0)
		key := []byte(arg(call, 1))
		var newHash func() hash.Hash
		switch algo {
		case "sha1":
			newHash = sha1.New
		default:
			newHash = sha256.New
		}
		return hashObject(vm, hmac.New(newHash, key))
	})

	obj.Set("randomBytes", func(call goja.FunctionCall) goja.Value {
		n := int(call.Arguments[0].ToInteger())
		buf := make([]byte, n)
		_, _ = rand.Read(buf)
		return bufferFrom(vm, buf)
	})

	obj.Set("randomUUID", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(uuid.NewString())
	})

	return obj
}

func hashObject(vm *goja.Runtime, h hash.Hash) *goja.Object {
	obj := vm.NewObject()
	obj.Set("update", func(call goja.FunctionCall) goja.Value {
		h.Write(bytesFromValue(call.Arguments[0]))
		return obj
	})
	obj.Set("digest", func(call goja.FunctionCall) goja.Value {
		sum := h.Sum(nil)
		enc := "hex"
		if len(call.Arguments) > 0 {
			enc = call.Arguments[0].String()
		}
		if enc == "hex" {
			return vm.ToValue(hex.EncodeToString(sum))
		}
		return bufferFrom(vm, sum)
	})
	return obj
}
