package codec

import (
	"testing"
	"time"
)

func Test_Codec_RoundTrip(t *testing.T) {
	cases := []Key{
		Undefined(),
		FromBool(true),
		FromBool(false),
		FromInt(-12345),
		FromFloat(3.14159),
		FromTime(time.UnixMilli(1_700_000_000_000)),
		FromString("hello world"),
		FromBinary([]byte{0x01, 0x02, 0xff}),
		FromArray([]Key{FromInt(1), FromInt(2), FromString("x")}),
	}

	for _, k := range cases {
		enc, err := Encode(k)
		if err != nil {
			t.Fatalf("encode %#v: %v", k, err)
		}

		got, n, err := Decode(enc)
		if err != nil {
			t.Fatalf("decode %#v: %v", k, err)
		}
		assert(t, n == len(enc), "expected to consume all %d bytes, consumed %d", len(enc), n)
		assert(t, Compare(k, got, true) == 0, "round trip mismatch: want=%#v got=%#v", k, got)
	}
}

func Test_Codec_StringTruncation(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	k := FromString(string(long))
	assert(t, len(k.Str) == MaxStringLen, "expected truncation to %d, got %d", MaxStringLen, len(k.Str))
}

func Test_Codec_Order(t *testing.T) {
	ordered := []Key{
		Undefined(),
		FromBool(false),
		FromBool(true),
		FromInt(1),
		FromInt(2),
		FromFloat(2.5),
		FromString("a"),
		FromString("b"),
		FromBinary([]byte{0x00}),
		FromBinary([]byte{0x01}),
	}

	for i := 0; i < len(ordered)-1; i++ {
		assert(t, Compare(ordered[i], ordered[i+1], true) < 0,
			"expected ordered[%d] < ordered[%d]", i, i+1)
	}
}

func Test_Codec_CaseInsensitiveOrder(t *testing.T) {
	a := FromString("Banana")
	b := FromString("apple")
	assert(t, Compare(a, b, false) > 0, "expected case-folded 'Banana' > 'apple'")
	assert(t, Compare(a, a, false) == 0, "expected equal key to compare equal")
}

func Test_RecordPointer_RoundTrip(t *testing.T) {
	rp := RecordPointer{Wildcards: []string{"u1", "grp3"}, Key: "p42"}

	enc, err := EncodePointer(rp)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, n, err := DecodePointer(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	assert(t, n == len(enc), "expected to consume all bytes")
	assert(t, got.Key == rp.Key, "key mismatch: want=%s got=%s", rp.Key, got.Key)
	assert(t, len(got.Wildcards) == len(rp.Wildcards), "wildcard count mismatch")
	for i := range rp.Wildcards {
		assert(t, got.Wildcards[i] == rp.Wildcards[i], "wildcard[%d] mismatch", i)
	}
}

func Test_RecordPointer_ResolvePath(t *testing.T) {
	rp := RecordPointer{Wildcards: []string{"u1"}, Key: "p1"}
	got := rp.ResolvePath("users/*/posts")
	want := "users/u1/posts/p1"
	assert(t, got == want, "want=%s got=%s", want, got)
}

func Test_TypedMap_RoundTrip(t *testing.T) {
	m := TypedMap{}.
		Set("type", FromString("normal")).
		Set("version", FromInt(1)).
		Set("cs", FromBool(false))

	enc, err := EncodeTypedMap(m)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, n, err := DecodeTypedMap(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	assert(t, n == len(enc), "expected to consume all bytes")

	v, ok := got.Get("type")
	assert(t, ok, "expected 'type' entry")
	assert(t, v.Str == "normal", "want=normal got=%s", v.Str)
}

func assert(t *testing.T, cond bool, msg string, args ...interface{}) {
	if cond {
		return
	}
	t.Errorf(msg, args...)
}
