package wire_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkeep-io/switchboard/internal/cryptosys"
	"github.com/arkeep-io/switchboard/internal/wire"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []wire.WireMessage{
		wire.JoinSpace{SpaceAddress: "S1", AgentID: "A1"},
		wire.LeaveSpace{SpaceAddress: "S1", AgentID: "A1"},
		wire.PublishEntry{
			SpaceAddress:    "S1",
			ProviderAgentID: "A1",
			Entry: wire.EntryData{
				EntryAddress: "E1",
				AspectList: []wire.AspectData{
					{AspectAddress: "AS1"},
					{AspectAddress: "AS2"},
				},
			},
		},
		wire.HandleGetGossipingEntryListResult{
			EntryListData: wire.EntryListData{
				RequestID:       "",
				SpaceAddress:    "S1",
				ProviderAgentID: "A3",
				AddressMap:      map[wire.EntryHash][]wire.AspectHash{"E1": {"AS1"}},
			},
		},
		wire.Ping{},
		wire.Pong{},
		wire.Status{},
		wire.StatusResponse{StatusData: wire.StatusData{SpacesCount: 2, WireVersion: wire.WireVersion}},
		wire.Err{ErrData: wire.ErrData{Kind: wire.ErrKindSpaceMismatch, Message: "nope"}},
	}

	for _, original := range cases {
		encoded, err := wire.Encode(original)
		require.NoError(t, err)

		decoded, err := wire.Decode(encoded)
		require.NoError(t, err)
		assert.Equal(t, original, decoded)
		assert.Equal(t, original.Kind(), decoded.Kind())
	}
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := wire.Decode([]byte(`{"type":"not_a_real_type"}`))
	assert.Error(t, err)
}

func TestSignedWireMessageVerify(t *testing.T) {
	kp, err := cryptosys.GenerateKeypair()
	require.NoError(t, err)
	sys := cryptosys.New()

	msg := wire.JoinSpace{SpaceAddress: "S1", AgentID: kp.AgentID()}
	signed, err := wire.Sign(msg, kp.AgentID(), kp.Sign)
	require.NoError(t, err)

	assert.True(t, signed.Verify(sys))

	decoded, err := signed.DecodePayload()
	require.NoError(t, err)
	assert.Equal(t, msg, decoded)

	// Tamper with the payload: verification must fail.
	tampered := signed
	tampered.Payload = append([]byte(nil), signed.Payload...)
	tampered.Payload[0] ^= 0xFF
	assert.False(t, tampered.Verify(sys))
}

func TestSignedWireMessageWireRoundTrip(t *testing.T) {
	kp, err := cryptosys.GenerateKeypair()
	require.NoError(t, err)

	signed, err := wire.Sign(wire.Ping{}, kp.AgentID(), kp.Sign)
	require.NoError(t, err)

	raw, err := wire.EncodeSignedWireMessage(signed)
	require.NoError(t, err)

	decoded, err := wire.DecodeSignedWireMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, signed, decoded)
}
