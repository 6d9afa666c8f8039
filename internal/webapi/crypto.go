package webapi

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"hash"
	"sync"

	"github.com/fetchedge/fetchedge/internal/core"
	"github.com/fetchedge/fetchedge/internal/eventloop"
)

// cryptoJS implements globalThis.crypto: getRandomValues, randomUUID, and
// subtle.digest/importKey/sign/verify backed by the Go functions registered
// in SetupCrypto. Asymmetric algorithms (RSA, ECDSA, Ed25519, ECDH) and
// encrypt/decrypt are not part of this worker's crypto surface; only
// digest and HMAC sign/verify are, see DESIGN.md.
const cryptoJS = `
(function() {
	const crypto = {};
	const subtle = {};

	crypto.getRandomValues = function(typedArray) {
		if (!typedArray || typeof typedArray.length !== 'number') {
			throw new TypeError("getRandomValues requires a typed array argument");
		}
		const n = typedArray.byteLength !== undefined ? typedArray.byteLength : typedArray.length;
		if (n > 65536) throw new Error("getRandomValues: byte length exceeds 65536");
		const b64 = __cryptoGetRandomBytes(n);
		const buf = __b64ToBuffer(b64);
		const bytes = new Uint8Array(buf);
		const view = new Uint8Array(typedArray.buffer || typedArray, typedArray.byteOffset || 0, n);
		for (let i = 0; i < n; i++) view[i] = bytes[i];
		return typedArray;
	};

	crypto.randomUUID = function() {
		return __cryptoRandomUUID();
	};

	function normalizeAlgoName(algorithm) {
		if (typeof algorithm === 'string') return algorithm;
		if (algorithm && typeof algorithm.name === 'string') return algorithm.name;
		throw new TypeError("algorithm must be a string or an object with a name property");
	}

	subtle.digest = function(algorithm, data) {
		const name = normalizeAlgoName(algorithm);
		const b64 = __bufferSourceToB64(data);
		return Promise.resolve(__cryptoDigest(name, b64)).then(__b64ToBuffer);
	};

	class CryptoKey {
		constructor(id, algorithm, extractable, usages) {
			this._id = id;
			this.algorithm = algorithm;
			this.extractable = extractable;
			this.type = 'secret';
			this.usages = usages || [];
		}
	}

	subtle.importKey = function(format, keyData, algorithm, extractable, keyUsages) {
		if (format !== 'raw') {
			throw new Error("importKey: only the 'raw' format is supported");
		}
		const name = normalizeAlgoName(algorithm);
		if (name !== 'HMAC') {
			throw new Error("importKey: only HMAC keys are supported");
		}
		const hash = algorithm && algorithm.hash ? normalizeAlgoName(algorithm.hash) : 'SHA-256';
		const b64 = __bufferSourceToB64(keyData);
		return Promise.resolve(__cryptoImportKey(b64, hash)).then(function(id) {
			return new CryptoKey(id, { name: 'HMAC', hash: { name: hash } }, !!extractable, keyUsages);
		});
	};

	subtle.exportKey = function(format, key) {
		if (format !== 'raw') throw new Error("exportKey: only the 'raw' format is supported");
		if (!(key instanceof CryptoKey)) throw new TypeError("exportKey requires a CryptoKey");
		return Promise.resolve(__cryptoExportKey(key._id)).then(__b64ToBuffer);
	};

	subtle.sign = function(algorithm, key, data) {
		const name = normalizeAlgoName(algorithm);
		if (name !== 'HMAC') throw new Error("sign: only HMAC is supported");
		if (!(key instanceof CryptoKey)) throw new TypeError("sign requires a CryptoKey");
		const b64 = __bufferSourceToB64(data);
		return Promise.resolve(__cryptoSign(key._id, b64)).then(__b64ToBuffer);
	};

	subtle.verify = function(algorithm, key, signature, data) {
		const name = normalizeAlgoName(algorithm);
		if (name !== 'HMAC') throw new Error("verify: only HMAC is supported");
		if (!(key instanceof CryptoKey)) throw new TypeError("verify requires a CryptoKey");
		const sigB64 = __bufferSourceToB64(signature);
		const dataB64 = __bufferSourceToB64(data);
		return Promise.resolve(__cryptoVerify(key._id, sigB64, dataB64));
	};

	crypto.subtle = subtle;
	globalThis.crypto = crypto;
	globalThis.CryptoKey = CryptoKey;
})();
`

type hmacKey struct {
	data []byte
	hash func() hash.Hash
}

// keyStore holds imported HMAC keys by opaque ID, scoped to one Host/worker.
type keyStore struct {
	mu   sync.Mutex
	next int
	keys map[int]hmacKey
}

func newKeyStore() *keyStore {
	return &keyStore{keys: make(map[int]hmacKey)}
}

func (s *keyStore) put(k hmacKey) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.keys[s.next] = k
	return s.next
}

func (s *keyStore) get(id int) (hmacKey, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	return k, ok
}

func hashCtor(algo string) (func() hash.Hash, error) {
	switch normalizeDigestAlgo(algo) {
	case "SHA-1":
		return sha1.New, nil
	case "SHA-256":
		return sha256.New, nil
	case "SHA-384":
		return sha512.New384, nil
	case "SHA-512":
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", algo)
	}
}

func normalizeDigestAlgo(name string) string {
	switch name {
	case "sha-1", "SHA-1", "sha1", "SHA1":
		return "SHA-1"
	case "sha-256", "SHA-256", "sha256", "SHA256", "":
		return "SHA-256"
	case "sha-384", "SHA-384", "sha384", "SHA384":
		return "SHA-384"
	case "sha-512", "SHA-512", "sha512", "SHA512":
		return "SHA-512"
	default:
		return name
	}
}

// SetupCrypto registers the Go-backed crypto.getRandomValues/randomUUID and
// subtle.digest/importKey/exportKey/sign/verify helpers (HMAC and digest
// only), then evaluates the JS crypto global. Must run after SetupWebAPIs
// (depends on __bufferSourceToB64/__b64ToBuffer).
func SetupCrypto(rt core.JSRuntime, _ *eventloop.EventLoop) error {
	keys := newKeyStore()

	if err := rt.RegisterFunc("__cryptoGetRandomBytes", func(n int) (string, error) {
		if n <= 0 || n > 65536 {
			return "", fmt.Errorf("getRandomValues: byte length must be 1-65536")
		}
		buf := make([]byte, n)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("crypto/rand: %v", err)
		}
		return base64.StdEncoding.EncodeToString(buf), nil
	}); err != nil {
		return err
	}

	if err := rt.RegisterFunc("__cryptoRandomUUID", func() (string, error) {
		var uuid [16]byte
		if _, err := rand.Read(uuid[:]); err != nil {
			return "", fmt.Errorf("crypto/rand: %v", err)
		}
		uuid[6] = (uuid[6] & 0x0f) | 0x40
		uuid[8] = (uuid[8] & 0x3f) | 0x80
		return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
			uuid[0:4], uuid[4:6], uuid[6:8], uuid[8:10], uuid[10:16]), nil
	}); err != nil {
		return err
	}

	if err := rt.RegisterFunc("__cryptoDigest", func(algo string, dataB64 string) (string, error) {
		data, err := base64.StdEncoding.DecodeString(dataB64)
		if err != nil {
			return "", fmt.Errorf("digest: invalid base64 data")
		}
		ctor, err := hashCtor(algo)
		if err != nil {
			return "", fmt.Errorf("digest: %w", err)
		}
		h := ctor()
		h.Write(data)
		return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
	}); err != nil {
		return err
	}

	if err := rt.RegisterFunc("__cryptoImportKey", func(keyB64 string, hashAlgo string) (int, error) {
		raw, err := base64.StdEncoding.DecodeString(keyB64)
		if err != nil {
			return 0, fmt.Errorf("importKey: invalid base64 key data")
		}
		ctor, err := hashCtor(hashAlgo)
		if err != nil {
			return 0, fmt.Errorf("importKey: %w", err)
		}
		id := keys.put(hmacKey{data: raw, hash: ctor})
		return id, nil
	}); err != nil {
		return err
	}

	if err := rt.RegisterFunc("__cryptoExportKey", func(id int) (string, error) {
		k, ok := keys.get(id)
		if !ok {
			return "", fmt.Errorf("exportKey: key not found")
		}
		return base64.StdEncoding.EncodeToString(k.data), nil
	}); err != nil {
		return err
	}

	if err := rt.RegisterFunc("__cryptoSign", func(id int, dataB64 string) (string, error) {
		k, ok := keys.get(id)
		if !ok {
			return "", fmt.Errorf("sign: key not found")
		}
		data, err := base64.StdEncoding.DecodeString(dataB64)
		if err != nil {
			return "", fmt.Errorf("sign: invalid base64 data")
		}
		mac := hmac.New(k.hash, k.data)
		mac.Write(data)
		return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
	}); err != nil {
		return err
	}

	if err := rt.RegisterFunc("__cryptoVerify", func(id int, sigB64 string, dataB64 string) (bool, error) {
		k, ok := keys.get(id)
		if !ok {
			return false, fmt.Errorf("verify: key not found")
		}
		sig, err := base64.StdEncoding.DecodeString(sigB64)
		if err != nil {
			return false, fmt.Errorf("verify: invalid base64 signature")
		}
		data, err := base64.StdEncoding.DecodeString(dataB64)
		if err != nil {
			return false, fmt.Errorf("verify: invalid base64 data")
		}
		mac := hmac.New(k.hash, k.data)
		mac.Write(data)
		return hmac.Equal(sig, mac.Sum(nil)), nil
	}); err != nil {
		return err
	}

	return rt.Eval(cryptoJS)
}
