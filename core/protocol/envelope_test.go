package protocol

import (
	"errors"
	"testing"
)

func TestDecodeValid(t *testing.T) {
	cases := []struct {
		in   string
		want Envelope
	}{
		{`{"kind":"command","token":"t"}`, Command("t")},
		{`{"kind":"ack","token":"t"}`, Ack("t")},
		{`{"kind":"cancel_command","commandId":"c1"}`, Cancel("c1", "")},
		{`{"kind":"cancel_command","commandId":"c1","token":"t"}`, Cancel("c1", "t")},
	}
	for _, c := range cases {
		got, err := Decode([]byte(c.in))
		if err != nil {
			t.Fatalf("decode %s: %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("decode %s: got %#v want %#v", c.in, got, c.want)
		}
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, in := range []string{
		`not json`,
		`{"kind":"reboot"}`,
		`{"kind":"command"}`,
		`{"kind":"ack","token":""}`,
		`{"kind":"cancel_command"}`,
		`[]`,
	} {
		if _, err := Decode([]byte(in)); !errors.Is(err, ErrMalformedMessage) {
			t.Fatalf("%s: expected ErrMalformedMessage got %v", in, err)
		}
	}
}

func TestEncodeOmitsEmptyFields(t *testing.T) {
	b, err := Cancel("c1", "").Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(b) != `{"kind":"cancel_command","commandId":"c1"}` {
		t.Fatalf("unexpected encoding %s", b)
	}
}
