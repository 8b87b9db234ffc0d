package wire

import (
	"encoding/json"
	"fmt"
)

// MessageType discriminates the wire variants exchanged between clients
// and the switchboard.
type MessageType string

const (
	TypeJoinSpace                        MessageType = "join_space"
	TypeLeaveSpace                       MessageType = "leave_space"
	TypeSendDirectMessage                MessageType = "send_direct_message"
	TypeHandleSendDirectMessage          MessageType = "handle_send_direct_message"
	TypeHandleSendDirectMessageResult    MessageType = "handle_send_direct_message_result"
	TypeSendDirectMessageResult          MessageType = "send_direct_message_result"
	TypePublishEntry                     MessageType = "publish_entry"
	TypeHandleGetAuthoringEntryList      MessageType = "handle_get_authoring_entry_list"
	TypeHandleGetAuthoringEntryListResult MessageType = "handle_get_authoring_entry_list_result"
	TypeHandleGetGossipingEntryList      MessageType = "handle_get_gossiping_entry_list"
	TypeHandleGetGossipingEntryListResult MessageType = "handle_get_gossiping_entry_list_result"
	TypeHandleFetchEntry                 MessageType = "handle_fetch_entry"
	TypeHandleFetchEntryResult           MessageType = "handle_fetch_entry_result"
	TypeHandleStoreEntryAspect           MessageType = "handle_store_entry_aspect"
	TypeQueryEntry                       MessageType = "query_entry"
	TypeHandleQueryEntry                 MessageType = "handle_query_entry"
	TypeHandleQueryEntryResult           MessageType = "handle_query_entry_result"
	TypeQueryEntryResult                 MessageType = "query_entry_result"
	TypePing                             MessageType = "ping"
	TypePong                             MessageType = "pong"
	TypeStatus                           MessageType = "status"
	TypeStatusResponse                   MessageType = "status_response"
	TypeErr                              MessageType = "err"
)

// WireMessage is implemented by every concrete message variant. It is a
// sealed-by-convention union: Decode only ever returns one of the types
// defined in this file.
type WireMessage interface {
	Kind() MessageType
}

// AspectData is one content-addressed fragment of an entry.
type AspectData struct {
	AspectAddress AspectHash `json:"aspect_address"`
	TypeHint      string     `json:"type_hint,omitempty"`
	Aspect        []byte     `json:"aspect,omitempty"`
	PublishedAtMs int64      `json:"published_at_ms,omitempty"`
}

// EntryData is an entry and the full ordered collection of its aspects.
type EntryData struct {
	EntryAddress EntryHash    `json:"entry_address"`
	AspectList   []AspectData `json:"aspect_list"`
}

// AspectAddresses returns the addresses of every aspect in the entry, in
// the order they appear in AspectList.
func (e EntryData) AspectAddresses() []AspectHash {
	out := make([]AspectHash, len(e.AspectList))
	for i, a := range e.AspectList {
		out[i] = a.AspectAddress
	}
	return out
}

// JoinSpace is the Client→Server request to join a space under an identity.
// The signer of the enclosing SignedWireMessage must equal AgentID.
type JoinSpace struct {
	SpaceAddress SpaceHash `json:"space_address"`
	AgentID      AgentID   `json:"agent_id"`
}

func (JoinSpace) Kind() MessageType { return TypeJoinSpace }

// LeaveSpace is the Client→Server request to leave a space. SpaceAddress
// and AgentID must match the connection's current Joined binding.
type LeaveSpace struct {
	SpaceAddress SpaceHash `json:"space_address"`
	AgentID      AgentID   `json:"agent_id"`
}

func (LeaveSpace) Kind() MessageType { return TypeLeaveSpace }

// DirectMessageData carries an opaque application payload between two
// agents in the same space. Used for all four direct-message variants
// below, wrapped in distinct named types so Kind() is unambiguous.
type DirectMessageData struct {
	SpaceAddress SpaceHash  `json:"space_address"`
	FromAgentID  AgentID    `json:"from_agent_id"`
	ToAgentID    AgentID    `json:"to_agent_id"`
	RequestID    string     `json:"request_id"`
	Content      []byte     `json:"content"`
}

type SendDirectMessage struct{ DirectMessageData }

func (SendDirectMessage) Kind() MessageType { return TypeSendDirectMessage }

type HandleSendDirectMessage struct{ DirectMessageData }

func (HandleSendDirectMessage) Kind() MessageType { return TypeHandleSendDirectMessage }

type HandleSendDirectMessageResult struct{ DirectMessageData }

func (HandleSendDirectMessageResult) Kind() MessageType {
	return TypeHandleSendDirectMessageResult
}

type SendDirectMessageResult struct{ DirectMessageData }

func (SendDirectMessageResult) Kind() MessageType { return TypeSendDirectMessageResult }

// PublishEntry is a Client→Server announcement of newly authored content.
type PublishEntry struct {
	SpaceAddress    SpaceHash `json:"space_address"`
	ProviderAgentID AgentID   `json:"provider_agent_id"`
	Entry           EntryData `json:"entry"`
}

func (PublishEntry) Kind() MessageType { return TypePublishEntry }

// GetListData requests an agent's authoring or gossiping list.
type GetListData struct {
	RequestID       string    `json:"request_id"`
	SpaceAddress    SpaceHash `json:"space_address"`
	ProviderAgentID AgentID   `json:"provider_agent_id"`
}

type HandleGetAuthoringEntryList struct{ GetListData }

func (HandleGetAuthoringEntryList) Kind() MessageType {
	return TypeHandleGetAuthoringEntryList
}

type HandleGetGossipingEntryList struct{ GetListData }

func (HandleGetGossipingEntryList) Kind() MessageType {
	return TypeHandleGetGossipingEntryList
}

// EntryListData is the reply to a GetListData request: every entry the
// reporting agent claims to hold, each with the aspect hashes it has.
type EntryListData struct {
	RequestID       string                       `json:"request_id"`
	SpaceAddress    SpaceHash                     `json:"space_address"`
	ProviderAgentID AgentID                       `json:"provider_agent_id"`
	AddressMap      map[EntryHash][]AspectHash    `json:"address_map"`
}

type HandleGetAuthoringEntryListResult struct{ EntryListData }

func (HandleGetAuthoringEntryListResult) Kind() MessageType {
	return TypeHandleGetAuthoringEntryListResult
}

type HandleGetGossipingEntryListResult struct{ EntryListData }

func (HandleGetGossipingEntryListResult) Kind() MessageType {
	return TypeHandleGetGossipingEntryListResult
}

// FetchEntryData requests the content of specific aspects of an entry from
// whichever agent is named as ProviderAgentID. RequestID carries the
// destination agent id when this is a gossip-delivery fetch (§4.8), and is
// empty for an authoring-list fetch (§4.5 HandleGetAuthoringEntryListResult).
type FetchEntryData struct {
	RequestID         string       `json:"request_id"`
	SpaceAddress      SpaceHash    `json:"space_address"`
	ProviderAgentID   AgentID      `json:"provider_agent_id"`
	EntryAddress      EntryHash    `json:"entry_address"`
	AspectAddressList []AspectHash `json:"aspect_address_list,omitempty"`
}

type HandleFetchEntry struct{ FetchEntryData }

func (HandleFetchEntry) Kind() MessageType { return TypeHandleFetchEntry }

// FetchEntryResultData is the reply to HandleFetchEntry, carrying the
// fetched entry content.
type FetchEntryResultData struct {
	RequestID       string    `json:"request_id"`
	SpaceAddress    SpaceHash `json:"space_address"`
	ProviderAgentID AgentID   `json:"provider_agent_id"`
	Entry           EntryData `json:"entry"`
}

type HandleFetchEntryResult struct{ FetchEntryResultData }

func (HandleFetchEntryResult) Kind() MessageType { return TypeHandleFetchEntryResult }

// StoreEntryAspectData pushes a single aspect to an agent that should store
// it: a replica of newly published content, or an agent known to be
// missing it.
type StoreEntryAspectData struct {
	RequestID       string     `json:"request_id"`
	SpaceAddress    SpaceHash  `json:"space_address"`
	ProviderAgentID AgentID    `json:"provider_agent_id"`
	EntryAddress    EntryHash  `json:"entry_address"`
	EntryAspect     AspectData `json:"entry_aspect"`
}

type HandleStoreEntryAspect struct{ StoreEntryAspectData }

func (HandleStoreEntryAspect) Kind() MessageType { return TypeHandleStoreEntryAspect }

// QueryEntryData is a content query, only valid under naive-sharding.
type QueryEntryData struct {
	SpaceAddress     SpaceHash `json:"space_address"`
	EntryAddress     EntryHash `json:"entry_address"`
	RequesterAgentID AgentID   `json:"requester_agent_id"`
	RequestID        string    `json:"request_id"`
	QueryData        []byte    `json:"query_data,omitempty"`
}

type QueryEntry struct{ QueryEntryData }

func (QueryEntry) Kind() MessageType { return TypeQueryEntry }

type HandleQueryEntry struct{ QueryEntryData }

func (HandleQueryEntry) Kind() MessageType { return TypeHandleQueryEntry }

// QueryEntryResultData carries the response to a content query back to the
// agent that issued it.
type QueryEntryResultData struct {
	SpaceAddress      SpaceHash `json:"space_address"`
	EntryAddress      EntryHash `json:"entry_address"`
	RequesterAgentID  AgentID   `json:"requester_agent_id"`
	ResponderAgentID  AgentID   `json:"responder_agent_id"`
	RequestID         string    `json:"request_id"`
	QueryResult       []byte    `json:"query_result,omitempty"`
}

type HandleQueryEntryResult struct{ QueryEntryResultData }

func (HandleQueryEntryResult) Kind() MessageType { return TypeHandleQueryEntryResult }

type QueryEntryResult struct{ QueryEntryResultData }

func (QueryEntryResult) Kind() MessageType { return TypeQueryEntryResult }

// Ping/Pong are the in-band liveness probe. They carry no payload and ride
// binary frames rather than WebSocket control frames.
type Ping struct{}

func (Ping) Kind() MessageType { return TypePing }

type Pong struct{}

func (Pong) Kind() MessageType { return TypePong }

// Status requests a StatusResponse. No payload.
type Status struct{}

func (Status) Kind() MessageType { return TypeStatus }

// StatusData is the payload of a StatusResponse.
type StatusData struct {
	SpacesCount      int    `json:"spaces_count"`
	ConnectionsCount int    `json:"connections_count"`
	RedundantCount   uint64 `json:"redundant_count"`
	WireVersion      uint32 `json:"wire_version"`
}

type StatusResponse struct{ StatusData }

func (StatusResponse) Kind() MessageType { return TypeStatusResponse }

// ErrKind enumerates the rejection reasons that are surfaced to a client
// inline (as opposed to just logged server-side).
type ErrKind string

const (
	ErrKindMessageWhileInLimbo ErrKind = "message_while_in_limbo"
	ErrKindSpaceMismatch       ErrKind = "space_mismatch"
	ErrKindSignerMismatch      ErrKind = "signer_mismatch"
	ErrKindUnvalidatedProxy    ErrKind = "unvalidated_proxy_agent"
	ErrKindOther               ErrKind = "other"
)

// ErrData is the payload of an Err message sent back to a client.
type ErrData struct {
	Kind    ErrKind `json:"kind"`
	Message string  `json:"message"`
}

type Err struct{ ErrData }

func (Err) Kind() MessageType { return TypeErr }

// envelope is the JSON-on-the-wire shape: a type discriminator plus the
// type-specific payload, deferred as a raw message until Decode knows which
// concrete struct to unmarshal into.
type envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode serialises a WireMessage to its envelope JSON form.
func Encode(m WireMessage) ([]byte, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("wire: encode payload: %w", err)
	}
	return json.Marshal(envelope{Type: m.Kind(), Payload: payload})
}

// Decode parses an envelope and returns the concrete WireMessage it carries.
func Decode(raw []byte) (WireMessage, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("wire: decode envelope: %w", err)
	}

	unmarshal := func(v WireMessage) (WireMessage, error) {
		if len(env.Payload) == 0 {
			return v, nil
		}
		if err := json.Unmarshal(env.Payload, v); err != nil {
			return nil, fmt.Errorf("wire: decode %s payload: %w", env.Type, err)
		}
		return derefWireMessage(v), nil
	}

	switch env.Type {
	case TypeJoinSpace:
		return unmarshal(&JoinSpace{})
	case TypeLeaveSpace:
		return unmarshal(&LeaveSpace{})
	case TypeSendDirectMessage:
		return unmarshal(&SendDirectMessage{})
	case TypeHandleSendDirectMessage:
		return unmarshal(&HandleSendDirectMessage{})
	case TypeHandleSendDirectMessageResult:
		return unmarshal(&HandleSendDirectMessageResult{})
	case TypeSendDirectMessageResult:
		return unmarshal(&SendDirectMessageResult{})
	case TypePublishEntry:
		return unmarshal(&PublishEntry{})
	case TypeHandleGetAuthoringEntryList:
		return unmarshal(&HandleGetAuthoringEntryList{})
	case TypeHandleGetAuthoringEntryListResult:
		return unmarshal(&HandleGetAuthoringEntryListResult{})
	case TypeHandleGetGossipingEntryList:
		return unmarshal(&HandleGetGossipingEntryList{})
	case TypeHandleGetGossipingEntryListResult:
		return unmarshal(&HandleGetGossipingEntryListResult{})
	case TypeHandleFetchEntry:
		return unmarshal(&HandleFetchEntry{})
	case TypeHandleFetchEntryResult:
		return unmarshal(&HandleFetchEntryResult{})
	case TypeHandleStoreEntryAspect:
		return unmarshal(&HandleStoreEntryAspect{})
	case TypeQueryEntry:
		return unmarshal(&QueryEntry{})
	case TypeHandleQueryEntry:
		return unmarshal(&HandleQueryEntry{})
	case TypeHandleQueryEntryResult:
		return unmarshal(&HandleQueryEntryResult{})
	case TypeQueryEntryResult:
		return unmarshal(&QueryEntryResult{})
	case TypePing:
		return Ping{}, nil
	case TypePong:
		return Pong{}, nil
	case TypeStatus:
		return Status{}, nil
	case TypeStatusResponse:
		return unmarshal(&StatusResponse{})
	case TypeErr:
		return unmarshal(&Err{})
	default:
		return nil, fmt.Errorf("wire: unknown message type %q", env.Type)
	}
}

// derefWireMessage dereferences the pointer variants produced by Decode's
// unmarshal helper so callers always receive value types, matching the
// types returned by the zero-payload variants (Ping, Pong, Status).
func derefWireMessage(v WireMessage) WireMessage {
	switch t := v.(type) {
	case *JoinSpace:
		return *t
	case *LeaveSpace:
		return *t
	case *SendDirectMessage:
		return *t
	case *HandleSendDirectMessage:
		return *t
	case *HandleSendDirectMessageResult:
		return *t
	case *SendDirectMessageResult:
		return *t
	case *PublishEntry:
		return *t
	case *HandleGetAuthoringEntryList:
		return *t
	case *HandleGetAuthoringEntryListResult:
		return *t
	case *HandleGetGossipingEntryList:
		return *t
	case *HandleGetGossipingEntryListResult:
		return *t
	case *HandleFetchEntry:
		return *t
	case *HandleFetchEntryResult:
		return *t
	case *HandleStoreEntryAspect:
		return *t
	case *QueryEntry:
		return *t
	case *HandleQueryEntry:
		return *t
	case *HandleQueryEntryResult:
		return *t
	case *QueryEntryResult:
		return *t
	case *StatusResponse:
		return *t
	case *Err:
		return *t
	default:
		return v
	}
}
