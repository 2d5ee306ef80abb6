// Copyright 2024 The LDAPWire Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package ldapwire

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ldapwire/ldapwire/ber"
)

var pcap = flag.String("pcap", "", "directory to write the encoded test PDUs to as pcap files")

// tlv builds a definite length TLV from its already encoded parts.
func tlv(tag byte, parts ...[]byte) []byte {
	var v []byte
	for _, p := range parts {
		v = append(v, p...)
	}
	switch n := len(v); {
	case n < 0x80:
		return append([]byte{tag, byte(n)}, v...)
	case n <= 0xff:
		return append([]byte{tag, 0x81, byte(n)}, v...)
	default:
		return append([]byte{tag, 0x82, byte(n >> 8), byte(n)}, v...)
	}
}

func str(tag byte, s string) []byte { return tlv(tag, []byte(s)) }

func integer(tag, v byte) []byte { return []byte{tag, 1, v} }

func enum(v byte) []byte { return integer(0x0a, v) }

func boolean(tag byte, v bool) []byte {
	if v {
		return []byte{tag, 1, 0xff}
	}
	return []byte{tag, 1, 0}
}

func strptr(s string) *string { return &s }

// writePcap wraps payload in IPv4/TCP headers to port 389 so the PDU can be
// inspected with wireshark.
func writePcap(fn string, payload []byte) error {
	l3 := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.IPv4(127, 0, 0, 1),
		DstIP:    net.IPv4(127, 0, 0, 1),
	}
	l4 := &layers.TCP{
		SrcPort: 40000,
		DstPort: 389,
		Seq:     1,
		PSH:     true,
		ACK:     true,
		Window:  65535,
	}
	if err := l4.SetNetworkLayerForChecksum(l3); err != nil {
		return err
	}
	sb := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(sb, opts, l3, l4, gopacket.Payload(payload)); err != nil {
		return err
	}

	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer f.Close()
	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65536, layers.LinkTypeIPv4); err != nil {
		return err
	}
	data := sb.Bytes()
	return w.WritePacket(gopacket.CaptureInfo{CaptureLength: len(data), Length: len(data)}, data)
}

// savePcap writes the expected and encoded PDUs of test name when -pcap is
// set.
func savePcap(t *testing.T, name string, exp, got []byte) {
	t.Helper()
	if *pcap == "" {
		return
	}
	base := strings.NewReplacer(" ", "_", "/", "_").Replace(name)
	for suffix, data := range map[string][]byte{"exp": exp, "got": got} {
		fn := filepath.Join(*pcap, fmt.Sprintf("%s-%s.pcap", base, suffix))
		if err := writePcap(fn, data); err != nil {
			t.Errorf("writing %s: %v", fn, err)
		}
	}
}

type testControlFactory struct {
	ControlFactory
	oid string
}

func (f testControlFactory) OID() string { return f.oid }

func TestCodecRegistry(t *testing.T) {
	var logged bytes.Buffer
	c := NewCodec()
	c.Logger = NewLogger(log.New(&logged, "", 0))

	assert.Equal(t, PagedResultsFactory, c.RequestControl(OIDPagedResults))
	assert.Equal(t, PagedResultsFactory, c.ResponseControl(OIDPagedResults))
	assert.Nil(t, c.RequestControl(OIDSortResponse))
	assert.Nil(t, c.ResponseControl(OIDSortRequest))
	// WhoAmIFactory holds funcs, which never compare equal
	whoAmI := c.ExtendedOperation(OIDWhoAmI)
	require.NotNil(t, whoAmI)
	assert.IsType(t, WhoAmIFactory, whoAmI)
	assert.Equal(t, OIDWhoAmI, whoAmI.OID())
	assert.Nil(t, c.IntermediateResponse(OIDWhoAmI))

	custom := testControlFactory{ControlFactory: PagedResultsFactory, oid: OIDPagedResults}
	prev := c.RegisterRequestControl(custom)
	assert.Equal(t, PagedResultsFactory, prev)
	assert.Equal(t, custom, c.RequestControl(OIDPagedResults))
	assert.Equal(t, PagedResultsFactory, c.ResponseControl(OIDPagedResults), "response map is separate")
	assert.Contains(t, logged.String(), "replacing request control factory for OID "+OIDPagedResults)

	assert.Nil(t, c.RegisterRequestControl(testControlFactory{ControlFactory: ManageDsaITFactory, oid: "1.2.3.4"}))

	c.UnregisterRequestControl(OIDPagedResults)
	assert.Nil(t, c.RequestControl(OIDPagedResults))
	c.UnregisterExtendedOperation(OIDWhoAmI)
	assert.Nil(t, c.ExtendedOperation(OIDWhoAmI))

	assert.NotNil(t, Default.RequestControl(OIDPagedResults), "codecs do not share registries")
}

func TestCodecHooks(t *testing.T) {
	var decoded, encoded, failed int
	var size int
	c := NewCodec()
	c.OnDecode = func(*Message) { decoded++ }
	c.OnEncode = func(_ *Message, n int) { encoded++; size = n }
	c.OnDecodeError = func(error) { failed++ }

	data := compareRequestBytes()
	m, err := c.Decode(data)
	require.NoError(t, err)
	_, err = c.EncodeMessage(m)
	require.NoError(t, err)
	_, err = c.Decode(data[:len(data)-1])
	require.Error(t, err)

	assert.Equal(t, 1, decoded)
	assert.Equal(t, 1, encoded)
	assert.Equal(t, 1, failed)
	assert.Equal(t, len(data), size)
}

func TestCodecLogger(t *testing.T) {
	var logged bytes.Buffer
	c := NewCodec()
	c.Logger = NewLogger(log.New(&logged, "", 0))

	_, err := c.Decode(compareRequestBytes())
	require.NoError(t, err)
	out := logged.String()
	assert.Contains(t, out, "COMPARE_REQUEST")
	assert.Contains(t, out, "decoded Message(1, CompareRequest, 0 controls)")
}

func TestMaxPDUSize(t *testing.T) {
	c := NewCodec()
	c.MaxPDUSize = 16
	_, err := c.Decode(compareRequestBytes())
	assert.ErrorIs(t, err, ber.ErrPDUTooLarge)

	c.MaxPDUSize = len(compareRequestBytes())
	_, err = c.Decode(compareRequestBytes())
	assert.NoError(t, err)
}

func TestNonMinimalLength(t *testing.T) {
	// DelRequest with the length of the message SEQUENCE in long form.
	data := []byte{0x30, 0x81, 0x08, 0x02, 0x01, 0x01, 0x4a, 0x03, 'c', '=', 'x'}
	_, err := Unmarshal(data)
	assert.ErrorIs(t, err, ber.ErrNonMinimalLength)

	c := NewCodec()
	c.AllowNonMinimalLength = true
	m, err := c.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, &DelRequest{DN: "c=x"}, m.Op)
}
