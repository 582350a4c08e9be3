package accounts

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// DiscriminatorSize is the Anchor account discriminator length.
const DiscriminatorSize = 8

const pubkeySize = 32

type Encoding int

const (
	U8 Encoding = iota
	U16
	U32
	U64
	I64
	Pubkey
	// PubkeyVec is a u32 little-endian length followed by that many 32-byte keys.
	PubkeyVec
)

func (e Encoding) width() int {
	switch e {
	case U8:
		return 1
	case U16:
		return 2
	case U32, PubkeyVec:
		return 4
	case U64, I64:
		return 8
	case Pubkey:
		return pubkeySize
	}
	return 0
}

type Field struct {
	Name     string
	Encoding Encoding
}

type Schema struct {
	Kind          Kind
	Discriminator [DiscriminatorSize]byte
	Fields        []Field
}

// MinSize is the smallest buffer that can hold the schema, counting vectors as empty.
func (s *Schema) MinSize() int {
	size := DiscriminatorSize
	for _, f := range s.Fields {
		size += f.Encoding.width()
	}
	return size
}

// Values holds the decoded fields of one account, keyed by field name.
type Values struct {
	unsigned map[string]uint64
	signed   map[string]int64
	keys     map[string]solana.PublicKey
	keyLists map[string][]solana.PublicKey
}

func NewValues() *Values {
	return &Values{
		unsigned: make(map[string]uint64),
		signed:   make(map[string]int64),
		keys:     make(map[string]solana.PublicKey),
		keyLists: make(map[string][]solana.PublicKey),
	}
}

func (v *Values) Uint(name string) uint64 { return v.unsigned[name] }
func (v *Values) Int(name string) int64 { return v.signed[name] }
func (v *Values) Bool(name string) bool { return v.unsigned[name] != 0 }
func (v *Values) Key(name string) solana.PublicKey { return v.keys[name] }
func (v *Values) KeyList(name string) []solana.PublicKey { return v.keyLists[name] }

func (v *Values) SetUint(name string, value uint64) *Values {
	v.unsigned[name] = value
	return v
}

func (v *Values) SetInt(name string, value int64) *Values {
	v.signed[name] = value
	return v
}

func (v *Values) SetBool(name string, value bool) *Values {
	if value {
		v.unsigned[name] = 1
	} else {
		v.unsigned[name] = 0
	}
	return v
}

func (v *Values) SetKey(name string, value solana.PublicKey) *Values {
	v.keys[name] = value
	return v
}

func (v *Values) SetKeyList(name string, value []solana.PublicKey) *Values {
	v.keyLists[name] = value
	return v
}

// decode walks the schema over data. Trailing bytes past the last field are ignored,
// since accounts are usually allocated with spare space.
func (s *Schema) decode(data []byte) (*Values, error) {
	if len(data) < s.MinSize() {
		return nil, newDecodeError(s.Kind, fmt.Sprintf("buffer of %d bytes is shorter than %d", len(data), s.MinSize()))
	}
	if [DiscriminatorSize]byte(data[:DiscriminatorSize]) != s.Discriminator {
		return nil, newDecodeError(s.Kind, "discriminator mismatch")
	}

	values := NewValues()
	offset := DiscriminatorSize
	for _, f := range s.Fields {
		width := f.Encoding.width()
		if offset+width > len(data) {
			return nil, newDecodeError(s.Kind, fmt.Sprintf("field %s overruns buffer at offset %d", f.Name, offset))
		}
		chunk := data[offset : offset+width]
		switch f.Encoding {
		case U8:
			values.unsigned[f.Name] = uint64(chunk[0])
		case U16:
			values.unsigned[f.Name] = uint64(binary.LittleEndian.Uint16(chunk))
		case U32:
			values.unsigned[f.Name] = uint64(binary.LittleEndian.Uint32(chunk))
		case U64:
			values.unsigned[f.Name] = binary.LittleEndian.Uint64(chunk)
		case I64:
			values.signed[f.Name] = int64(binary.LittleEndian.Uint64(chunk))
		case Pubkey:
			values.keys[f.Name] = solana.PublicKeyFromBytes(chunk)
		case PubkeyVec:
			count := int(binary.LittleEndian.Uint32(chunk))
			remaining := len(data) - offset - width
			if count > remaining/pubkeySize {
				return nil, newDecodeError(s.Kind, fmt.Sprintf("vector %s declares %d entries, buffer holds %d", f.Name, count, remaining/pubkeySize))
			}
			list := make([]solana.PublicKey, count)
			start := offset + width
			for i := 0; i < count; i++ {
				list[i] = solana.PublicKeyFromBytes(data[start+i*pubkeySize : start+(i+1)*pubkeySize])
			}
			values.keyLists[f.Name] = list
			offset += count * pubkeySize
		}
		offset += width
	}
	return values, nil
}

// encode is the inverse of decode and produces exactly the bytes the schema describes.
func (s *Schema) encode(values *Values) []byte {
	out := make([]byte, 0, s.MinSize())
	out = append(out, s.Discriminator[:]...)
	for _, f := range s.Fields {
		switch f.Encoding {
		case U8:
			out = append(out, byte(values.unsigned[f.Name]))
		case U16:
			out = binary.LittleEndian.AppendUint16(out, uint16(values.unsigned[f.Name]))
		case U32:
			out = binary.LittleEndian.AppendUint32(out, uint32(values.unsigned[f.Name]))
		case U64:
			out = binary.LittleEndian.AppendUint64(out, values.unsigned[f.Name])
		case I64:
			out = binary.LittleEndian.AppendUint64(out, uint64(values.signed[f.Name]))
		case Pubkey:
			key := values.keys[f.Name]
			out = append(out, key[:]...)
		case PubkeyVec:
			list := values.keyLists[f.Name]
			out = binary.LittleEndian.AppendUint32(out, uint32(len(list)))
			for _, key := range list {
				out = append(out, key[:]...)
			}
		}
	}
	return out
}
