package config

import "net/netip"

// Endpoint is one of a Connection's two symmetric sub-records (this/
// that), per spec.md §3.
type Endpoint struct {
	Host       string
	HostKind   int // decoded via EnumHost when Host is a %-form, else 0
	Subnets    []netip.Prefix
	SourceIP   netip.Addr
	IKEPort    int
	NextHop    netip.Addr
	Updown     string
	ID         string
	RSASigKey  string
	Cert       string
	CKAID      string
	CA         string
	SendCert   int
	XAuthServer bool
	XAuthClient bool
	ModeCfgServer bool
	ModeCfgClient bool
	AuthBy     int
	ProtoPort  ProtoPort
	EAP        string
	CAT        bool
	SecLabel   string
	AddressPool string
}

// ProtoPort is the decoded form of a "protoport=" value, populated by the
// processed post-hook spec.md §4.3 describes.
type ProtoPort struct {
	Proto int
	Port  int
}

// Connection is the typed record a parsed `conn` block assembles into,
// per spec.md §3.
type Connection struct {
	Name string
	This Endpoint
	That Endpoint

	Auto         int
	Also         []AlsoRef
	IKE          string
	Type         int
	AuthBy       int
	KeyExchange  string
	IKEv2        int
	PPK          int
	ESN          int
	Fragmentation int
	DPDDelay     int64
	DPDTimeout   int64
	DPDAction    int
	Mark         Mark
	VTI          string
	VTIInterface string
	Phase2       int
	ESPAlg       string
	Compress     bool
	Metric       int
	Rekey        bool
	KeyingTries  int64
	IKELifetime  int64
	SALifetime   int64
	SendCA       int
	ConnAlias    string
	DNSMatchID   bool
}

// AlsoRef is a deferred inclusion recorded by the "also"/"alsoflip"
// keywords, resolved against the rest of the connection table after the
// initial parse pass, per spec.md §4.3.
type AlsoRef struct {
	Name string
	Flip bool
}

// Mark is the decoded form of the mark/mark-in/mark-out keyword family.
type Mark struct {
	Value uint32
	Mask  uint32
}

// endpoint returns a pointer to This or That according to side. Callers
// must not pass SideNone.
func (c *Connection) endpoint(side Side) *Endpoint {
	if side == SideLeft {
		return &c.This
	}
	return &c.That
}

// flip swaps This and That, the effect alsoflip applies when resolving a
// deferred inclusion, per spec.md §4.3.
func (c *Connection) flip() {
	c.This, c.That = c.That, c.This
}
