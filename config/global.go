package config

// GlobalConfig is the typed record the "config setup" section assembles
// into, per spec.md §3's global slot families.
type GlobalConfig struct {
	Interfaces     []string
	MyVendorID     string
	PlutoDebug     uint64
	LogFile        string
	UniqueIDs      bool
	DumpDir        string
	IPsecDir       string
	NSSDir         string
	SecretsFile    string
	CRLStrict      bool
	OCSPStrict     bool
	Seccomp        int
	MaxHalfOpenIKE int64
	NHelpers       int64
	ListenTCP      bool
	ListenUDP      bool
	DropOppoNull   bool
	VirtualPrivate string
	Protostack     string
	GlobalRedirectTo string
}
