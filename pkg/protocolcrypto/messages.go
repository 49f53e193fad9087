package protocolcrypto

// The contract's submitted-message shapes. Field order is immaterial for
// JSON; these are plain structs so the dispatcher can marshal them directly
// into a Cosmos-SDK MsgExecuteContract payload.

type StakeMsg struct {
	PublicKey string  `json:"public_key"`
	Proof     string  `json:"proof"`
	Memo      *string `json:"memo"`
}

type UnstakeMsg struct {
	PublicKey string `json:"public_key"`
	Proof     string `json:"proof"`
}

type WithdrawMsg struct {
	PublicKey      string `json:"public_key"`
	Proof          string `json:"proof"`
	WithdrawAddress string `json:"withdraw_address"`
}

type CommitDataResultMsg struct {
	DRID        string `json:"dr_id"`
	Commitment  string `json:"commitment_hex"`
	Proof       string `json:"proof_hex"`
	PublicKey   string `json:"public_key"`
}

type RevealBodyMsg struct {
	DRID            string   `json:"dr_id"`
	DRBlockHeight   uint64   `json:"dr_block_height"`
	ExitCode        uint8    `json:"exit_code"`
	GasUsed         uint64   `json:"gas_used"`
	ProxyPublicKeys []string `json:"proxy_public_keys"`
	RevealBase64    string   `json:"reveal_base64"`
}

type RevealDataResultMsg struct {
	PublicKey  string        `json:"public_key"`
	Proof      string        `json:"proof_hex"`
	RevealBody RevealBodyMsg `json:"reveal_body"`
	Stderr     []string      `json:"stderr"`
	Stdout     []string      `json:"stdout"`
}

// Admin messages, gated behind ENABLE_DEV_TOOLS in the CLI.

type PauseMsg struct{}
type UnpauseMsg struct{}

type AddToAllowlistMsg struct {
	PublicKey string `json:"public_key"`
}

type RemoveFromAllowlistMsg struct {
	PublicKey string `json:"public_key"`
}

type TransferOwnershipMsg struct {
	NewOwner string `json:"new_owner"`
}

type AcceptOwnershipMsg struct{}
