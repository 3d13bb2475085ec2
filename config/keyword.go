package config

import "strings"

// Validity is a bitset of the scopes and modifiers a keyword descriptor
// carries. A descriptor's Validity decides which section it may appear
// in and how the assembler treats repeated occurrences.
type Validity uint16

const (
	// ValidityConfig marks a keyword legal only in the "config setup" section.
	ValidityConfig Validity = 1 << iota
	// ValidityConn marks a keyword legal only inside a conn block.
	ValidityConn
	// ValidityLeftRight marks a keyword that must be addressed via a
	// left/right prefix rather than by its bare name.
	ValidityLeftRight
	// ValidityPolicy marks a keyword whose decoded value folds into the
	// connection's policy bitmask rather than a dedicated slot.
	ValidityPolicy
	// ValidityAlias marks a keyword that is a secondary name for another
	// descriptor's slot.
	ValidityAlias
	// ValidityProcessed marks a keyword whose raw decoded value needs a
	// slot-specific post-hook (protoport splitting, ikev2 four-state
	// normalization, and the like).
	ValidityProcessed
	// ValidityDuplicateOK marks a scalar slot that may be set more than
	// once. The assembler does not consult it: a repeated scalar keyword
	// is never rejected, whether or not this bit is set.
	ValidityDuplicateOK
	// ValidityMilliseconds marks a number-typed slot whose value is
	// written in seconds and stored in milliseconds (the assembler
	// multiplies it by 1000). Time-typed slots need no such bit:
	// DecodeTime already yields milliseconds.
	ValidityMilliseconds
)

// ValueType names the decoder a keyword's raw text is routed through.
type ValueType int

const (
	TString ValueType = iota
	TAppendString
	TAppendList
	TFilename
	TDirname
	TBool
	TInvertBool
	TNumber
	TTime
	TPercent
	TEnum
	TEnumList
	TLooseEnum
	TModifierSet
	TSubnet
	TIPAddr
	TRange
	TIDType
	TRSASigKey
	TObsolete
	TComment
)

// SlotFamily is one of the four disjoint integer spaces a descriptor's
// destination slot is drawn from.
type SlotFamily int

const (
	SlotGlobalNum SlotFamily = iota
	SlotGlobalString
	SlotConnNum
	SlotConnString
)

// Slot names the field in a GlobalConfig or Connection record that a
// decoded value is written into. Slot values are stable identifiers, not
// array offsets: tests and assemble.go switch on them directly.
type Slot struct {
	Family SlotFamily
	ID     int
}

// Global numeric/boolean slots (KBF_*).
const (
	KBFUniqueIDs = iota
	KBFCRLStrict
	KBFOCSPStrict
	KBFSeccomp
	KBFMaxHalfOpenIKE
	KBFNHelpers
	KBFListenTCP
	KBFListenUDP
	KBFDropOppoNull
	KBFPlutoDebug
)

// Global string slots (KSF_*).
const (
	KSFInterfaces = iota
	KSFMyVendorID
	KSFLogFile
	KSFDumpDir
	KSFIPsecDir
	KSFNSSDir
	KSFSecretsFile
	KSFVirtualPrivate
	KSFProtostack
	KSFGlobalRedirectTo
)

// Connection numeric slots (KNCF_*).
const (
	KNCFAuto = iota
	KNCFIKEVersion
	KNCFKeyExchange
	KNCFIKEv2
	KNCFPPK
	KNCFESN
	KNCFFragmentation
	KNCFType
	KNCFMetric
	KNCFCompress
	KNCFDPDDelay
	KNCFDPDTimeout
	KNCFDPDAction
	KNCFRekey
	KNCFKeyingTries
	KNCFIKELifetime
	KNCFSALifetime
	KNCFDNSMatchID
	KNCFSendCA
	KNCFPhase2
)

// Connection string slots (KSCF_*) — one ID space shared by the leftright
// mirrored endpoint fields and the unmirrored connection-wide fields;
// every constant is distinct, so the two never collide.
const (
	KSCFHost = iota
	KSCFSubnet
	KSCFSourceIP
	KSCFNextHop
	KSCFUpdown
	KSCFID
	KSCFRSASigKey
	KSCFCert
	KSCFCKAID
	KSCFCA
	KSCFSendCert
	KSCFProtoPort
	KSCFAuthBy
	KSCFIKEPort
	KSCFConnAlias
	KSCFESPAlg
	KSCFAlso
	KSCFKeyExchange
)

// SparseEnum is an ordered list of (symbolic name, numeric value) pairs.
// Multiple names may map to the same value (aliases).
type SparseEnum []EnumEntry

// EnumEntry is a single symbolic-name/numeric-value pair of a SparseEnum.
type EnumEntry struct {
	Name  string
	Value int
}

// Lookup resolves name against the enumeration case-insensitively,
// returning the first match's value.
func (e SparseEnum) Lookup(name string) (int, bool) {
	for _, ent := range e {
		if strings.EqualFold(ent.Name, name) {
			return ent.Value, true
		}
	}
	return 0, false
}

// LooseEnumStringFallback is the sentinel loose-enum decoders return when
// the raw text did not match any symbolic name and the caller should
// store the string verbatim instead of a numeric code. It is a named
// constant distinct from any legitimate decoded value, per the
// string-fallback/zero-collision concern the loose-enum type raises.
const LooseEnumStringFallback = 255

// Modifier dictionaries used by TModifierSet descriptors, e.g. plutodebug.
var PlutoDebugModifiers = ModifierDict{
	"none":   0,
	"raw":    1 << 0,
	"crypt":  1 << 1,
	"parsing": 1 << 2,
	"emitting": 1 << 3,
	"control": 1 << 4,
	"lifecycle": 1 << 5,
	"kernel":  1 << 6,
	"dns":     1 << 7,
	"oppo":    1 << 8,
	"controlmore": 1 << 9,
	"pfkey":   1 << 10,
	"nattt":   1 << 11,
	"x509":    1 << 12,
	"dpd":     1 << 13,
	"oppoinfo": 1 << 14,
	"whackwatch": 1 << 15,
	"all":     1<<16 - 1,
}

// Enumerations grounded on lib/libipsecconf/keywords.c's kw_*_list tables.
var (
	EnumYesNo = SparseEnum{
		{"yes", 1}, {"no", 0},
	}
	EnumYesNoAuto = SparseEnum{
		{"yes", 1}, {"no", 0}, {"auto", 2},
	}
	// EnumFourValued models kw_fourvalued_list: ppk's never/permit/
	// propose/insist, with "yes" aliasing "propose" and "always"
	// aliasing "insist" the way keywords.c does.
	EnumFourValued = SparseEnum{
		{"never", 0}, {"permit", 1},
		{"propose", 2}, {"yes", 2},
		{"insist", 3}, {"always", 3},
	}
	// EnumFragmentation models kw_ynf_list: fragmentation's three
	// states no/yes/force, with "never" aliasing "no" and "insist"
	// aliasing "force" (ynf_force).
	EnumFragmentation = SparseEnum{
		{"never", 0}, {"no", 0},
		{"yes", 1},
		{"insist", 2}, {"force", 2},
	}
	EnumAuthBy = SparseEnum{
		{"never", 0},
		{"secret", 1}, {"psk", 1},
		{"rsasig", 2}, {"rsa", 2},
		{"ecdsa", 3},
		{"null", 4},
		{"eaponly", 5},
	}
	EnumAuto = SparseEnum{
		{"ignore", 0},
		{"add", 1},
		{"ondemand", 2},
		{"route", 2},
		{"start", 3},
		{"up", 3},
		{"keep", 4},
	}
	EnumType = SparseEnum{
		{"tunnel", 0},
		{"transport", 1},
		{"pass", 2}, {"passthrough", 2},
		{"reject", 3},
		{"drop", 3},
	}
	EnumSendCert = SparseEnum{
		{"never", 0},
		{"sendifasked", 1},
		{"alwayssend", 2}, {"always", 2},
	}
	EnumDPDAction = SparseEnum{
		{"hold", 0},
		{"clear", 1},
		{"restart", 2}, {"restart_by_peer", 2},
	}
	EnumESN = SparseEnum{
		{"no", 0}, {"yes", 1}, {"either", 2},
	}
	EnumHost = SparseEnum{
		{"%defaultroute", 1},
		{"%any", 2},
		{"%", 2},
		{"%opportunistic", 3}, {"%oppo", 3},
		{"%opportunisticgroup", 4}, {"%oppogroup", 4}, {"%group", 4},
		{"%hostname", 5},
	}
)

// commentKeyword is the distinguished comment-keyword descriptor
// (ipsec_conf_keyword_comment in keywords.c): any token beginning with
// x- or x_ is accepted verbatim as a user comment, scoped to conn blocks.
var commentKeyword = KeywordDescriptor{
	Name:     "x-comment",
	Validity: ValidityConn,
	Type:     TComment,
}

// Keywords is the master descriptor table. It is a representative subset
// of lib/libipsecconf/keywords.c's ~230-entry ipsec_conf_keywords[]
// table: every category the original table exercises (global scalars,
// leftright-mirrored endpoint fields, aliases, sparse enums, loose
// enums, modifier sets, and the dns-match-id bug entry) has at least one
// descriptor here, and Lookup/decode/assemble are fully general over an
// arbitrarily large table — extending this list to the full original is
// mechanical data entry, not an algorithmic change.
var Keywords = []KeywordDescriptor{
	// --- config setup (global) ---
	{Name: "interfaces", Validity: ValidityConfig | ValidityAppendList, Type: TAppendList, Slot: Slot{SlotGlobalString, KSFInterfaces}},
	{Name: "myvendorid", Validity: ValidityConfig, Type: TString, Slot: Slot{SlotGlobalString, KSFMyVendorID}},
	{Name: "plutodebug", Validity: ValidityConfig, Type: TModifierSet, Slot: Slot{SlotGlobalNum, KBFPlutoDebug}, Modifiers: PlutoDebugModifiers},
	{Name: "logfile", Validity: ValidityConfig, Type: TFilename, Slot: Slot{SlotGlobalString, KSFLogFile}},
	{Name: "plutostderrlog", Validity: ValidityConfig | ValidityAlias, Type: TFilename, Slot: Slot{SlotGlobalString, KSFLogFile}},
	{Name: "uniqueids", Validity: ValidityConfig, Type: TBool, Slot: Slot{SlotGlobalNum, KBFUniqueIDs}},
	{Name: "dumpdir", Validity: ValidityConfig, Type: TDirname, Slot: Slot{SlotGlobalString, KSFDumpDir}},
	{Name: "ipsecdir", Validity: ValidityConfig, Type: TDirname, Slot: Slot{SlotGlobalString, KSFIPsecDir}},
	{Name: "nssdir", Validity: ValidityConfig, Type: TDirname, Slot: Slot{SlotGlobalString, KSFNSSDir}},
	{Name: "secretsfile", Validity: ValidityConfig, Type: TFilename, Slot: Slot{SlotGlobalString, KSFSecretsFile}},
	{Name: "crl-strict", Validity: ValidityConfig, Type: TBool, Slot: Slot{SlotGlobalNum, KBFCRLStrict}},
	{Name: "ocsp-strict", Validity: ValidityConfig, Type: TBool, Slot: Slot{SlotGlobalNum, KBFOCSPStrict}},
	{Name: "seccomp", Validity: ValidityConfig, Type: TEnum, Slot: Slot{SlotGlobalNum, KBFSeccomp}, Enum: EnumYesNoAuto},
	{Name: "max-halfopen-ike", Validity: ValidityConfig, Type: TNumber, Slot: Slot{SlotGlobalNum, KBFMaxHalfOpenIKE}},
	{Name: "nhelpers", Validity: ValidityConfig, Type: TNumber, Slot: Slot{SlotGlobalNum, KBFNHelpers}},
	{Name: "listen-tcp", Validity: ValidityConfig, Type: TBool, Slot: Slot{SlotGlobalNum, KBFListenTCP}},
	{Name: "listen-udp", Validity: ValidityConfig, Type: TBool, Slot: Slot{SlotGlobalNum, KBFListenUDP}},
	{Name: "drop-oppo-null", Validity: ValidityConfig, Type: TBool, Slot: Slot{SlotGlobalNum, KBFDropOppoNull}},
	{Name: "virtual-private", Validity: ValidityConfig, Type: TAppendString, Slot: Slot{SlotGlobalString, KSFVirtualPrivate}},
	{Name: "virtual_private", Validity: ValidityConfig | ValidityAlias, Type: TAppendString, Slot: Slot{SlotGlobalString, KSFVirtualPrivate}},
	{Name: "protostack", Validity: ValidityConfig, Type: TString, Slot: Slot{SlotGlobalString, KSFProtostack}},
	{Name: "global-redirect-to", Validity: ValidityConfig, Type: TString, Slot: Slot{SlotGlobalString, KSFGlobalRedirectTo}},

	// --- leftright mirrored endpoint fields ---
	{Name: "", Validity: ValidityConn | ValidityLeftRight, Type: TLooseEnum, Slot: Slot{SlotConnString, KSCFHost}, Enum: EnumHost},
	{Name: "subnet", Validity: ValidityConn | ValidityLeftRight, Type: TSubnet, Slot: Slot{SlotConnString, KSCFSubnet}},
	{Name: "sourceip", Validity: ValidityConn | ValidityLeftRight, Type: TIPAddr, Slot: Slot{SlotConnString, KSCFSourceIP}},
	{Name: "nexthop", Validity: ValidityConn | ValidityLeftRight, Type: TIPAddr, Slot: Slot{SlotConnString, KSCFNextHop}},
	{Name: "updown", Validity: ValidityConn | ValidityLeftRight, Type: TFilename, Slot: Slot{SlotConnString, KSCFUpdown}},
	{Name: "id", Validity: ValidityConn | ValidityLeftRight, Type: TIDType, Slot: Slot{SlotConnString, KSCFID}},
	{Name: "rsasigkey", Validity: ValidityConn | ValidityLeftRight, Type: TRSASigKey, Slot: Slot{SlotConnString, KSCFRSASigKey}},
	{Name: "cert", Validity: ValidityConn | ValidityLeftRight, Type: TFilename, Slot: Slot{SlotConnString, KSCFCert}},
	{Name: "ckaid", Validity: ValidityConn | ValidityLeftRight, Type: TString, Slot: Slot{SlotConnString, KSCFCKAID}},
	{Name: "ca", Validity: ValidityConn | ValidityLeftRight, Type: TString, Slot: Slot{SlotConnString, KSCFCA}},
	{Name: "sendcert", Validity: ValidityConn | ValidityLeftRight, Type: TEnum, Slot: Slot{SlotConnString, KSCFSendCert}, Enum: EnumSendCert},
	{Name: "protoport", Validity: ValidityConn | ValidityLeftRight | ValidityProcessed, Type: TString, Slot: Slot{SlotConnString, KSCFProtoPort}},
	{Name: "auth", Validity: ValidityConn | ValidityLeftRight, Type: TEnum, Slot: Slot{SlotConnString, KSCFAuthBy}, Enum: EnumAuthBy},
	{Name: "ikeport", Validity: ValidityConn | ValidityLeftRight, Type: TNumber, Slot: Slot{SlotConnString, KSCFIKEPort}},

	// --- unmirrored conn options ---
	{Name: "auto", Validity: ValidityConn | ValidityDuplicateOK, Type: TEnum, Slot: Slot{SlotConnNum, KNCFAuto}, Enum: EnumAuto},
	{Name: "also", Validity: ValidityConn | ValidityAppendList, Type: TAppendList, Slot: Slot{SlotConnString, KSCFAlso}},
	{Name: "alsoflip", Validity: ValidityConn | ValidityAppendList, Type: TAppendList, Slot: Slot{SlotConnString, KSCFAlso}},
	{Name: "type", Validity: ValidityConn, Type: TEnum, Slot: Slot{SlotConnNum, KNCFType}, Enum: EnumType},
	{Name: "authby", Validity: ValidityConn, Type: TEnum, Slot: Slot{SlotConnString, KSCFAuthBy}, Enum: EnumAuthBy},
	{Name: "keyexchange", Validity: ValidityConn, Type: TString, Slot: Slot{SlotConnString, KSCFKeyExchange}},
	{Name: "ikev2", Validity: ValidityConn, Type: TEnum, Slot: Slot{SlotConnNum, KNCFIKEv2}, Enum: EnumFourValued},
	{Name: "ppk", Validity: ValidityConn, Type: TEnum, Slot: Slot{SlotConnNum, KNCFPPK}, Enum: EnumFourValued},
	{Name: "esn", Validity: ValidityConn, Type: TEnum, Slot: Slot{SlotConnNum, KNCFESN}, Enum: EnumESN},
	{Name: "fragmentation", Validity: ValidityConn, Type: TEnum, Slot: Slot{SlotConnNum, KNCFFragmentation}, Enum: EnumFragmentation},
	{Name: "dpddelay", Validity: ValidityConn, Type: TTime, Slot: Slot{SlotConnNum, KNCFDPDDelay}},
	{Name: "dpdtimeout", Validity: ValidityConn, Type: TTime, Slot: Slot{SlotConnNum, KNCFDPDTimeout}},
	{Name: "dpdaction", Validity: ValidityConn, Type: TEnum, Slot: Slot{SlotConnNum, KNCFDPDAction}, Enum: EnumDPDAction},
	{Name: "rekey", Validity: ValidityConn, Type: TBool, Slot: Slot{SlotConnNum, KNCFRekey}},
	{Name: "keyingtries", Validity: ValidityConn, Type: TNumber, Slot: Slot{SlotConnNum, KNCFKeyingTries}},
	{Name: "ikelifetime", Validity: ValidityConn, Type: TTime, Slot: Slot{SlotConnNum, KNCFIKELifetime}},
	{Name: "keylife", Validity: ValidityConn, Type: TTime, Slot: Slot{SlotConnNum, KNCFSALifetime}},
	{Name: "lifetime", Validity: ValidityConn | ValidityAlias, Type: TTime, Slot: Slot{SlotConnNum, KNCFSALifetime}},
	{Name: "salifetime", Validity: ValidityConn | ValidityAlias, Type: TTime, Slot: Slot{SlotConnNum, KNCFSALifetime}},
	{Name: "metric", Validity: ValidityConn, Type: TNumber, Slot: Slot{SlotConnNum, KNCFMetric}},
	{Name: "compress", Validity: ValidityConn, Type: TBool, Slot: Slot{SlotConnNum, KNCFCompress}},
	{Name: "sendca", Validity: ValidityConn, Type: TEnum, Slot: Slot{SlotConnNum, KNCFSendCA}, Enum: EnumSendCert},
	// phase2 accepts either repeated "phase2=esp"/"phase2=ah" lines or a
	// single comma/colon/space-separated list ("phase2=esp,ah"); TEnumList
	// routes it through the bitwise-OR multi-value decoder instead of the
	// scalar one, same as the piece-by-piece parser_enum_list "list" mode.
	{Name: "phase2", Validity: ValidityConn | ValidityPolicy, Type: TEnumList, Slot: Slot{SlotConnNum, KNCFPhase2}, Enum: SparseEnum{{"esp", 1}, {"ah", 2}}},
	{Name: "esp", Validity: ValidityConn, Type: TString, Slot: Slot{SlotConnString, KSCFESPAlg}},
	{Name: "ah", Validity: ValidityConn | ValidityAlias, Type: TString, Slot: Slot{SlotConnString, KSCFESPAlg}},
	{Name: "phase2alg", Validity: ValidityConn | ValidityAlias | ValidityObsolete, Type: TObsolete, Slot: Slot{SlotConnString, KSCFESPAlg}},
	{Name: "connalias", Validity: ValidityConn, Type: TString, Slot: Slot{SlotConnString, KSCFConnAlias}},

	// --- confirmed bug, preserved per spec.md's Open Question: the
	// trailing comma means this entry's Name never equals a lexed
	// token, so the option can never be looked up by name.
	{Name: "dns-match-id,", Validity: ValidityConn, Type: TBool, Slot: Slot{SlotConnNum, KNCFDNSMatchID}},

	commentKeyword,
}

// Extra validity bits used only by the table above, kept distinct from
// the documented §3 set so TAppendList/obsolete descriptors can still be
// expressed without overloading ValidityPolicy.
const (
	ValidityAppendList Validity = 1 << 15
	ValidityObsolete   Validity = 1 << 14
)

// KeywordDescriptor is the immutable, table-driven record spec.md §3
// calls the keyword descriptor.
type KeywordDescriptor struct {
	Name      string
	Validity  Validity
	Type      ValueType
	Slot      Slot
	Enum      SparseEnum
	Modifiers ModifierDict
}

// Side identifies which endpoint sub-record a leftright-mirrored keyword
// addresses.
type Side int

const (
	SideNone Side = iota
	SideLeft
	SideRight
)

// TokenClass is the production a successful lookup yields, selecting how
// the (external) grammar parses the right-hand side.
type TokenClass int

const (
	ClassKeyword TokenClass = iota
	ClassPercentWord
	ClassTimeWord
	ClassBoolWord
	ClassComment
	ClassString
)

func classFor(t ValueType) TokenClass {
	switch t {
	case TPercent:
		return ClassPercentWord
	case TTime:
		return ClassTimeWord
	case TBool, TInvertBool:
		return ClassBoolWord
	case TComment:
		return ClassComment
	default:
		return ClassKeyword
	}
}

// LookupResult is the outcome of resolving a lexer token against the
// keyword table. Descriptor is nil only for the free-STRING fallback
// (§4.1 step 4), in which case Raw carries the duplicated token text.
type LookupResult struct {
	Descriptor *KeywordDescriptor
	Side       Side
	Class      TokenClass
	Raw        string
}

// Lookup resolves token s against table per spec.md §4.1:
//  1. skip leftright-mirrorable entries on the bare-name scan;
//  2. then try a left/right-prefixed scan against leftright entries;
//  3. then fall back to a user comment keyword for x-/x_ prefixes;
//  4. otherwise yield s as a free STRING token.
func Lookup(table []KeywordDescriptor, s string) LookupResult {
	for i := range table {
		d := &table[i]
		if d.Validity&ValidityLeftRight != 0 {
			continue
		}
		if strings.EqualFold(d.Name, s) {
			return LookupResult{Descriptor: d, Side: SideNone, Class: classFor(d.Type), Raw: s}
		}
	}

	for _, prefix := range []struct {
		text string
		side Side
	}{
		{"left", SideLeft},
		{"right", SideRight},
	} {
		if len(s) < len(prefix.text) || !strings.EqualFold(s[:len(prefix.text)], prefix.text) {
			continue
		}
		remainder := s[len(prefix.text):]
		for i := range table {
			d := &table[i]
			if d.Validity&ValidityLeftRight == 0 {
				continue
			}
			if strings.EqualFold(d.Name, remainder) {
				return LookupResult{Descriptor: d, Side: prefix.side, Class: classFor(d.Type), Raw: s}
			}
		}
	}

	if len(s) >= 2 && (strings.HasPrefix(strings.ToLower(s), "x-") || strings.HasPrefix(strings.ToLower(s), "x_")) {
		return LookupResult{Descriptor: &commentKeyword, Side: SideNone, Class: ClassComment, Raw: s}
	}

	return LookupResult{Descriptor: nil, Side: SideNone, Class: ClassString, Raw: s}
}
