package engine

import "crypto/cipher"

// cfb8 is cipher feedback mode with an 8-bit segment size. Every output byte
// costs one block encryption of the shift register.
type cfb8 struct {
	block    cipher.Block
	register []byte
	keystrm  []byte
	decrypt  bool
}

func newCFB8(block cipher.Block, iv []byte, decrypt bool) *cfb8 {
	size := block.BlockSize()
	if len(iv) != size {
		panic("cfb8: IV length must equal block size")
	}
	register := make([]byte, size)
	copy(register, iv)
	return &cfb8{
		block:    block,
		register: register,
		keystrm:  make([]byte, size),
		decrypt:  decrypt,
	}
}

// NewCFB8Encrypter returns a cipher.Stream that encrypts with CFB8.
func NewCFB8Encrypter(block cipher.Block, iv []byte) cipher.Stream {
	return newCFB8(block, iv, false)
}

// NewCFB8Decrypter returns a cipher.Stream that decrypts with CFB8.
func NewCFB8Decrypter(block cipher.Block, iv []byte) cipher.Stream {
	return newCFB8(block, iv, true)
}

// XORKeyStream supports dst and src aliasing exactly.
func (x *cfb8) XORKeyStream(dst, src []byte) {
	if len(dst) < len(src) {
		panic("cfb8: output smaller than input")
	}
	last := len(x.register) - 1
	for i, in := range src {
		x.block.Encrypt(x.keystrm, x.register)
		out := in ^ x.keystrm[0]
		dst[i] = out
		// The register always shifts in the ciphertext byte.
		feedback := out
		if x.decrypt {
			feedback = in
		}
		copy(x.register, x.register[1:])
		x.register[last] = feedback
	}
}
