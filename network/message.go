package network

import "encoding/json"

// MsgType labels a gossip-overlay message (spec §6).
type MsgType string

const (
	MsgPing                  MsgType = "ping"
	MsgPong                  MsgType = "pong"
	MsgAddPeer               MsgType = "add_peer"
	MsgNewPeer               MsgType = "new_peer"
	MsgPeerInfo              MsgType = "peer_info"
	MsgKnownPeers            MsgType = "known_peers"
	MsgChangeName            MsgType = "change_name"
	MsgChainRequest          MsgType = "chain_request"
	MsgChain                 MsgType = "chain"
	MsgNewTx                 MsgType = "new_tx"
	MsgNewBlock              MsgType = "new_block"
	MsgStakeAnnouncement     MsgType = "stake_announcement"
	MsgSlashAnnouncement     MsgType = "slash_announcement"
	MsgMinersListUpdate      MsgType = "miners_list_update"
	MsgNetworkDetailsRequest MsgType = "network_details_request"
	MsgNetworkDetails        MsgType = "network_details"
	MsgFile                  MsgType = "file"
)

// Message is the envelope for every gossip frame: one JSON message per
// WebSocket frame, `id` a UUID used for dedup (spec §6).
type Message struct {
	Type    MsgType         `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// PeerInfoData is the payload of add_peer/new_peer/peer_info.
type PeerInfoData struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Name      string `json:"name"`
	PublicKey string `json:"public_key"`
	NodeID    string `json:"node_id,omitempty"`
}

// KnownPeersPayload is the payload of known_peers.
type KnownPeersPayload struct {
	Peers []PeerInfoData `json:"peers"`
}

// ChangeNamePayload is the payload of change_name.
type ChangeNamePayload struct {
	NewPeerMsgID string `json:"new_peer_msg_id"`
	NewName      string `json:"new_name"`
}

// ChainPayload is the payload of the chain message (full serialized
// chain, sent in reply to chain_request).
type ChainPayload struct {
	Chain json.RawMessage `json:"chain"`
}

// NewTxPayload is the payload of new_tx.
type NewTxPayload struct {
	Transaction string `json:"transaction"` // canonical encoding
	Sign        string `json:"sign"`        // base64
	SenderPEM   string `json:"sender_pem"`
}

// NewBlockPayload is the payload of new_block.
type NewBlockPayload struct {
	Block    json.RawMessage `json:"block"`
	VRFProof string          `json:"vrf_proof,omitempty"`
	Sign     string          `json:"sign,omitempty"`
}

// StakeAnnouncementPayload is the payload of stake_announcement.
type StakeAnnouncementPayload struct {
	Stake json.RawMessage `json:"stake"`
}

// SlashAnnouncementPayload is the payload of slash_announcement.
type SlashAnnouncementPayload struct {
	Evidence1  json.RawMessage `json:"evidence1"`
	Evidence2  json.RawMessage `json:"evidence2"`
	Block1Sign string          `json:"block1_sign"`
	Block2Sign string          `json:"block2_sign"`
	Position   int             `json:"pos"`
}

// MinersListUpdatePayload is the payload of miners_list_update.
type MinersListUpdatePayload struct {
	MinersList      []string `json:"miners_list"`
	ActivationBlock int      `json:"activation_block"`
	Signature       string   `json:"signature"` // hex
}

// NetworkDetailsPayload is the payload of network_details.
type NetworkDetailsPayload struct {
	Admin  string   `json:"admin"`
	Miners []string `json:"miners"`
}

// FilePayload is the payload of file (opaque content-ID sidecar).
type FilePayload struct {
	CID  string `json:"cid"`
	Desc string `json:"desc"`
}
