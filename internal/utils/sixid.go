package utils

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SixID is a 6-byte identifier stored in BSON as BinData with custom subtype 0x80
// and rendered as 10 characters of Crockford Base32.
type SixID [6]byte

// SixIDHookFunc is the signature of the NewSixID test hook. When it returns
// override=true its id is used instead of a random one.
type SixIDHookFunc func() (id SixID, override bool)

// NewSixIDHook can be set by tests to make generated IDs deterministic.
var NewSixIDHook SixIDHookFunc

// NewSixID returns a random SixID.
func NewSixID() SixID {
	if NewSixIDHook != nil {
		if id, override := NewSixIDHook(); override {
			return id
		}
	}
	var id SixID
	if _, err := rand.Read(id[:]); err != nil {
		// zero ID on entropy failure; inserts will collide and be retried
		return SixID{}
	}
	return id
}

// IsZero reports whether the ID is the zero value.
func (u SixID) IsZero() bool {
	return u == SixID{}
}

const crockfordAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

var crockfordDecode = func() map[byte]byte {
	m := make(map[byte]byte, 64)
	for i := 0; i < len(crockfordAlphabet); i++ {
		m[crockfordAlphabet[i]] = byte(i)
	}
	for i := 10; i < len(crockfordAlphabet); i++ {
		m[crockfordAlphabet[i]+('a'-'A')] = byte(i)
	}
	// commonly confused characters
	m['o'], m['O'] = m['0'], m['0']
	m['i'], m['I'] = m['1'], m['1']
	m['l'], m['L'] = m['1'], m['1']
	return m
}()

// String returns the Crockford Base32 (uppercase) form: 48 bits -> 10 characters.
func (u SixID) String() string {
	var out [10]byte
	var bits, offset uint
	n := 0
	for i := 0; i < 6; i++ {
		bits |= uint(u[i]) << offset
		offset += 8
		for offset >= 5 {
			out[n] = crockfordAlphabet[bits&0x1F]
			n++
			bits >>= 5
			offset -= 5
		}
	}
	if offset > 0 {
		out[n] = crockfordAlphabet[bits&0x1F]
		n++
	}
	return string(out[:n])
}

// ParseSixID decodes a Crockford Base32 string back into a SixID. Hyphens and
// spaces are tolerated.
func ParseSixID(s string) (SixID, error) {
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	if len(s) != 10 {
		return SixID{}, errors.New("sixid: encoded length must be 10")
	}
	var bits uint64
	var offset uint
	var id SixID
	n := 0
	for i := 0; i < 10; i++ {
		val, ok := crockfordDecode[s[i]]
		if !ok {
			return SixID{}, errors.New("sixid: invalid character")
		}
		bits |= uint64(val) << offset
		offset += 5
		for offset >= 8 && n < 6 {
			id[n] = byte(bits & 0xFF)
			n++
			bits >>= 8
			offset -= 8
		}
	}
	if n != 6 {
		return SixID{}, errors.New("sixid: could not decode 6 bytes")
	}
	return id, nil
}

// MarshalBSONValue stores the ID as BinData subtype 0x80.
func (u SixID) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(primitive.Binary{Subtype: 0x80, Data: u[:]})
}

// UnmarshalBSONValue accepts BinData subtype 0x80 of length 6.
func (u *SixID) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	if t == bson.TypeNull {
		*u = SixID{}
		return nil
	}
	var bin primitive.Binary
	raw := bson.RawValue{Type: t, Value: data}
	if err := raw.Unmarshal(&bin); err != nil {
		return errors.New("sixid: expected BSON binary")
	}
	if bin.Subtype != 0x80 || len(bin.Data) != 6 {
		return errors.New("sixid: binary must be subtype 0x80 and 6 bytes")
	}
	copy(u[:], bin.Data)
	return nil
}

// MarshalJSON renders the ID as its Crockford Base32 string.
func (u SixID) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

// UnmarshalJSON parses the Crockford Base32 string form.
func (u *SixID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	id, err := ParseSixID(s)
	if err != nil {
		return err
	}
	*u = id
	return nil
}
