package config

import (
	"context"
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/containerd/log"

	"github.com/libreswan/pluto/internal/confscan"
	"github.com/libreswan/pluto/internal/errdefs"
)

// ParsedConfig is the typed result of assembling a full statement stream,
// per spec.md §4.3: a GlobalConfig plus the connection table, in
// declaration order.
type ParsedConfig struct {
	Global      GlobalConfig
	Connections map[string]*Connection
	Order       []string
}

// Parser is the config assembler (component C). It is not re-entrant
// across goroutines (spec.md §5: "invoked once per config load and is
// not re-entrant"), but a fresh Parser may be constructed per load so
// tests can run independently.
type Parser struct {
	SubnetPolicy SubnetPolicy

	result  ParsedConfig
	inConn  bool
	current *Connection
}

// NewParser returns a Parser ready to Assemble a statement stream.
func NewParser(policy SubnetPolicy) *Parser {
	return &Parser{
		SubnetPolicy: policy,
		result: ParsedConfig{
			Connections: map[string]*Connection{},
		},
	}
}

// Assemble processes stmts (as produced by internal/confscan.Scan) per
// spec.md §4.3: each statement is scoped, decoded, and routed into the
// current section's record, then "also"/"alsoflip" deferred inclusions
// are resolved. Assemble is a one-shot operation: a Parser must not be
// reused after it returns.
func (p *Parser) Assemble(ctx context.Context, stmts []confscan.Statement) (*ParsedConfig, error) {
	for _, st := range stmts {
		if st.NewSection {
			p.openSection(st)
			continue
		}
		if err := p.assembleOne(ctx, st); err != nil {
			return nil, err
		}
	}
	if err := p.resolveAlso(ctx); err != nil {
		return nil, err
	}
	return &p.result, nil
}

func (p *Parser) openSection(st confscan.Statement) {
	if st.Section == confscan.SectionConfig {
		p.inConn = false
		p.current = nil
		return
	}
	p.inConn = true
	conn, ok := p.result.Connections[st.SectionName]
	if !ok {
		conn = &Connection{Name: st.SectionName}
		p.result.Connections[st.SectionName] = conn
		p.result.Order = append(p.result.Order, st.SectionName)
	}
	p.current = conn
}

func (p *Parser) assembleOne(ctx context.Context, st confscan.Statement) error {
	res := Lookup(Keywords, st.Key)
	if res.Descriptor == nil {
		return wrapParseError(&ParseError{File: st.File, Line: st.Line, Keyword: st.Key, Value: st.Value, msg: fmt.Sprintf("unknown keyword %s", st.Key)}, "assemble")
	}
	d := res.Descriptor
	if res.Class == ClassComment {
		log.G(ctx).Debugf("%s:%d: comment keyword %s", st.File, st.Line, st.Key)
		return nil
	}

	if p.inConn && d.Validity&ValidityConn == 0 {
		return errdefs.Forbidden(&ParseError{File: st.File, Line: st.Line, Keyword: st.Key, Value: st.Value, msg: "keyword not valid inside a conn block"})
	}
	if !p.inConn && d.Validity&ValidityConfig == 0 {
		return errdefs.Forbidden(&ParseError{File: st.File, Line: st.Line, Keyword: st.Key, Value: st.Value, msg: "keyword not valid in config setup"})
	}

	if d.Type == TObsolete {
		log.G(ctx).Warnf("%s:%d: keyword %s is obsolete, ignored", st.File, st.Line, st.Key)
		return nil
	}

	if d.Name == "also" || d.Name == "alsoflip" {
		p.current.Also = append(p.current.Also, AlsoRef{Name: st.Value, Flip: d.Name == "alsoflip"})
		return nil
	}

	perr := func(msg string) error {
		return &ParseError{File: st.File, Line: st.Line, Keyword: st.Key, Value: st.Value, msg: msg}
	}

	switch d.Type {
	case TBool, TInvertBool:
		var v bool
		var err error
		if d.Type == TInvertBool {
			v, err = DecodeInvertBool(st.Key, st.Value)
		} else {
			v, err = DecodeBool(st.Key, st.Value)
		}
		if err != nil {
			return wrapParseError(annotate(err, st), "assemble")
		}
		return p.writeBool(d, res.Side, v)

	case TNumber:
		n, err := DecodeNumber(st.Key, st.Value)
		if err != nil {
			return wrapParseError(annotate(err, st), "assemble")
		}
		if d.Validity&ValidityMilliseconds != 0 {
			n *= 1000
		}
		return p.writeNumber(d, res.Side, n)

	case TTime:
		n, err := DecodeTime(st.Key, st.Value)
		if err != nil {
			return wrapParseError(annotate(err, st), "assemble")
		}
		return p.writeNumber(d, res.Side, n)

	case TPercent:
		n, err := DecodePercent(st.Key, st.Value)
		if err != nil {
			return wrapParseError(annotate(err, st), "assemble")
		}
		return p.writeNumber(d, res.Side, int64(n))

	case TEnum:
		n, err := DecodeEnum(st.Key, d.Enum, st.Value)
		if err != nil {
			return wrapParseError(annotate(err, st), "assemble")
		}
		return p.writeEnum(d, res.Side, n)

	case TEnumList:
		n, err := DecodeMultiEnumList(st.Key, d.Enum, st.Value, false)
		if err != nil {
			return wrapParseError(annotate(err, st), "assemble")
		}
		return p.writeEnum(d, res.Side, n)

	case TLooseEnum:
		n, usedString := DecodeLooseEnum(d.Enum, st.Value)
		return p.writeLooseString(d, res.Side, n, st.Value, usedString)

	case TModifierSet:
		n, err := DecodeModifierSet(d.Modifiers, st.Value)
		if err != nil {
			return wrapParseError(annotate(err, st), "assemble")
		}
		return p.writeNumber(d, res.Side, int64(n))

	case TSubnet:
		sn, err := DecodeSubnet(st.Key, st.Value, p.SubnetPolicy)
		if err != nil {
			return wrapParseError(annotate(err, st), "assemble")
		}
		return p.writeSubnet(d, res.Side, sn)

	case TIPAddr:
		a, err := DecodeIPAddr(st.Key, st.Value)
		if err != nil {
			return wrapParseError(annotate(err, st), "assemble")
		}
		return p.writeIPAddr(d, res.Side, a)

	case TRange:
		// ranges are not yet wired into a connection slot; reserved
		// for future addresspool-style keywords.
		if _, _, err := DecodeRange(st.Key, st.Value); err != nil {
			return wrapParseError(annotate(err, st), "assemble")
		}
		return nil

	case TString, TAppendString, TAppendList, TFilename, TDirname, TIDType, TRSASigKey:
		if d.Validity&ValidityProcessed != 0 && d.Name == "protoport" {
			pp, err := decodeProtoPort(st.Value)
			if err != nil {
				return wrapParseError(perr(err.Error()), "assemble")
			}
			return p.writeProtoPort(res.Side, pp)
		}
		return p.writeString(d, res.Side, st.Value)

	default:
		return wrapParseError(perr("unsupported value type"), "assemble")
	}
}

func annotate(err error, st confscan.Statement) *ParseError {
	if pe, ok := err.(*ParseError); ok {
		pe.File, pe.Line = st.File, st.Line
		return pe
	}
	return &ParseError{File: st.File, Line: st.Line, Keyword: st.Key, Value: st.Value, msg: err.Error()}
}

func decodeProtoPort(raw string) (ProtoPort, error) {
	proto, portStr, ok := strings.Cut(raw, "/")
	if !ok {
		return ProtoPort{}, fmt.Errorf("invalid value: %s", raw)
	}
	protoNum, err := strconv.Atoi(proto)
	if err != nil {
		switch strings.ToLower(proto) {
		case "tcp":
			protoNum = 6
		case "udp":
			protoNum = 17
		case "icmp":
			protoNum = 1
		default:
			return ProtoPort{}, fmt.Errorf("invalid value: %s", raw)
		}
	}
	if portStr == "%any" || portStr == "" {
		return ProtoPort{Proto: protoNum, Port: 0}, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return ProtoPort{}, fmt.Errorf("invalid value: %s", raw)
	}
	return ProtoPort{Proto: protoNum, Port: port}, nil
}

func (p *Parser) endpoint(side Side) *Endpoint {
	if side == SideNone {
		return nil
	}
	return p.current.endpoint(side)
}

func (p *Parser) writeBool(d *KeywordDescriptor, side Side, v bool) error {
	n := int64(0)
	if v {
		n = 1
	}
	return p.writeNumber(d, side, n)
}

func (p *Parser) writeNumber(d *KeywordDescriptor, side Side, n int64) error {
	if d.Slot.Family == SlotGlobalNum {
		g := &p.result.Global
		switch d.Slot.ID {
		case KBFUniqueIDs:
			g.UniqueIDs = n != 0
		case KBFCRLStrict:
			g.CRLStrict = n != 0
		case KBFOCSPStrict:
			g.OCSPStrict = n != 0
		case KBFSeccomp:
			g.Seccomp = int(n)
		case KBFMaxHalfOpenIKE:
			g.MaxHalfOpenIKE = n
		case KBFNHelpers:
			g.NHelpers = n
		case KBFListenTCP:
			g.ListenTCP = n != 0
		case KBFListenUDP:
			g.ListenUDP = n != 0
		case KBFDropOppoNull:
			g.DropOppoNull = n != 0
		case KBFPlutoDebug:
			g.PlutoDebug = uint64(n)
		}
		return nil
	}

	if d.Slot.Family == SlotConnString {
		// Endpoint slots reached through a numeric decoder (ikeport);
		// their IDs overlap the KNCF_* space, so route them here.
		if d.Slot.ID == KSCFIKEPort && side != SideNone {
			p.endpoint(side).IKEPort = int(n)
		}
		return nil
	}

	c := p.current
	switch d.Slot.ID {
	case KNCFAuto:
		c.Auto = int(n)
	case KNCFIKEv2:
		c.IKEv2 = int(n)
	case KNCFPPK:
		c.PPK = int(n)
	case KNCFESN:
		c.ESN = int(n)
	case KNCFFragmentation:
		c.Fragmentation = int(n)
	case KNCFType:
		c.Type = int(n)
	case KNCFMetric:
		c.Metric = int(n)
	case KNCFCompress:
		c.Compress = n != 0
	case KNCFDPDDelay:
		c.DPDDelay = n
	case KNCFDPDTimeout:
		c.DPDTimeout = n
	case KNCFDPDAction:
		c.DPDAction = int(n)
	case KNCFRekey:
		c.Rekey = n != 0
	case KNCFKeyingTries:
		c.KeyingTries = n
	case KNCFIKELifetime:
		c.IKELifetime = n
	case KNCFSALifetime:
		c.SALifetime = n
	case KNCFDNSMatchID:
		c.DNSMatchID = n != 0
	case KNCFSendCA:
		c.SendCA = int(n)
	case KNCFPhase2:
		c.Phase2 |= int(n)
	}
	_ = side
	return nil
}

func (p *Parser) writeEnum(d *KeywordDescriptor, side Side, n int) error {
	if d.Slot.Family == SlotConnString && d.Slot.ID == KSCFAuthBy {
		if side != SideNone {
			p.endpoint(side).AuthBy = n
		} else {
			p.current.AuthBy = n
		}
		return nil
	}
	if d.Slot.Family == SlotConnString && d.Slot.ID == KSCFSendCert {
		p.endpoint(side).SendCert = n
		return nil
	}
	return p.writeNumber(d, side, int64(n))
}

func (p *Parser) writeLooseString(d *KeywordDescriptor, side Side, n int, raw string, usedString bool) error {
	if d.Slot.Family == SlotConnString && d.Slot.ID == KSCFHost {
		ep := p.endpoint(side)
		ep.Host = raw
		if usedString {
			ep.HostKind = 0
		} else {
			ep.HostKind = n
		}
		return nil
	}
	return p.writeString(d, side, raw)
}

func (p *Parser) writeString(d *KeywordDescriptor, side Side, raw string) error {
	if d.Slot.Family == SlotGlobalString {
		g := &p.result.Global
		switch d.Slot.ID {
		case KSFInterfaces:
			if g.Interfaces == nil || len(g.Interfaces) == 0 {
				g.Interfaces = []string{raw}
			} else {
				g.Interfaces = append(g.Interfaces, raw)
			}
		case KSFMyVendorID:
			g.MyVendorID = raw
		case KSFLogFile:
			g.LogFile = raw
		case KSFDumpDir:
			g.DumpDir = raw
		case KSFIPsecDir:
			g.IPsecDir = raw
		case KSFNSSDir:
			g.NSSDir = raw
		case KSFSecretsFile:
			g.SecretsFile = raw
		case KSFVirtualPrivate:
			if g.VirtualPrivate == "" {
				g.VirtualPrivate = raw
			} else {
				g.VirtualPrivate += "," + raw
			}
		case KSFProtostack:
			g.Protostack = raw
		case KSFGlobalRedirectTo:
			g.GlobalRedirectTo = raw
		}
		return nil
	}

	c := p.current
	if side != SideNone {
		ep := p.endpoint(side)
		switch d.Slot.ID {
		case KSCFHost:
			ep.Host = raw
		case KSCFUpdown:
			ep.Updown = raw
		case KSCFID:
			ep.ID = raw
		case KSCFRSASigKey:
			ep.RSASigKey = raw
		case KSCFCert:
			ep.Cert = raw
		case KSCFCKAID:
			ep.CKAID = raw
		case KSCFCA:
			ep.CA = raw
		case KSCFIKEPort:
			n, _ := strconv.Atoi(raw)
			ep.IKEPort = n
		}
		return nil
	}

	switch d.Slot.ID {
	case KSCFESPAlg:
		c.ESPAlg = raw
	case KSCFConnAlias:
		c.ConnAlias = raw
	case KSCFKeyExchange:
		c.KeyExchange = raw
	}
	return nil
}

func (p *Parser) writeSubnet(d *KeywordDescriptor, side Side, sn netip.Prefix) error {
	if side == SideNone {
		return nil
	}
	ep := p.endpoint(side)
	ep.Subnets = append(ep.Subnets, sn)
	return nil
}

func (p *Parser) writeIPAddr(d *KeywordDescriptor, side Side, a netip.Addr) error {
	if side == SideNone {
		return nil
	}
	ep := p.endpoint(side)
	switch d.Slot.ID {
	case KSCFSourceIP:
		ep.SourceIP = a
	case KSCFNextHop:
		ep.NextHop = a
	}
	return nil
}

func (p *Parser) writeProtoPort(side Side, pp ProtoPort) error {
	if side == SideNone {
		return nil
	}
	p.endpoint(side).ProtoPort = pp
	return nil
}

func (p *Parser) resolveAlso(ctx context.Context) error {
	resolving := map[string]bool{}
	var resolve func(name string) error
	resolve = func(name string) error {
		conn, ok := p.result.Connections[name]
		if !ok {
			return errdefs.NotFound(fmt.Errorf("also: connection %q not found", name))
		}
		if resolving[name] {
			return wrapParseError(&ParseError{Keyword: "also", Value: name, msg: "also cycle detected"}, "assemble")
		}
		if len(conn.Also) == 0 {
			return nil
		}
		resolving[name] = true
		defer delete(resolving, name)
		refs := conn.Also
		conn.Also = nil
		for _, ref := range refs {
			if err := resolve(ref.Name); err != nil {
				return err
			}
			other, ok := p.result.Connections[ref.Name]
			if !ok {
				return errdefs.NotFound(fmt.Errorf("also: connection %q not found", ref.Name))
			}
			merged := *other
			if ref.Flip {
				merged.flip()
			}
			mergeConnection(conn, &merged)
			log.G(ctx).Debugf("also: %s includes %s (flip=%v)", name, ref.Name, ref.Flip)
		}
		return nil
	}
	for _, name := range p.result.Order {
		if err := resolve(name); err != nil {
			return err
		}
	}
	return nil
}

// mergeConnection copies fields from src into dst wherever dst still
// holds its zero value, the way "also" layers a referenced section's
// settings underneath the including section's own, per spec.md §4.3.
// Only the fields assigned below are merged; among the keyword-settable
// ones, dpdaction, phase2, compress, rekey and the endpoints' protoport
// are not inherited from src.
func mergeConnection(dst, src *Connection) {
	mergeEndpoint(&dst.This, &src.This)
	mergeEndpoint(&dst.That, &src.That)
	if dst.Auto == 0 {
		dst.Auto = src.Auto
	}
	if dst.IKE == "" {
		dst.IKE = src.IKE
	}
	if dst.Type == 0 {
		dst.Type = src.Type
	}
	if dst.AuthBy == 0 {
		dst.AuthBy = src.AuthBy
	}
	if dst.KeyExchange == "" {
		dst.KeyExchange = src.KeyExchange
	}
	if dst.IKEv2 == 0 {
		dst.IKEv2 = src.IKEv2
	}
	if dst.PPK == 0 {
		dst.PPK = src.PPK
	}
	if dst.ESN == 0 {
		dst.ESN = src.ESN
	}
	if dst.Fragmentation == 0 {
		dst.Fragmentation = src.Fragmentation
	}
	if dst.DPDDelay == 0 {
		dst.DPDDelay = src.DPDDelay
	}
	if dst.DPDTimeout == 0 {
		dst.DPDTimeout = src.DPDTimeout
	}
	if dst.VTI == "" {
		dst.VTI = src.VTI
	}
	if dst.VTIInterface == "" {
		dst.VTIInterface = src.VTIInterface
	}
	if dst.ESPAlg == "" {
		dst.ESPAlg = src.ESPAlg
	}
	if dst.Metric == 0 {
		dst.Metric = src.Metric
	}
	if dst.KeyingTries == 0 {
		dst.KeyingTries = src.KeyingTries
	}
	if dst.IKELifetime == 0 {
		dst.IKELifetime = src.IKELifetime
	}
	if dst.SALifetime == 0 {
		dst.SALifetime = src.SALifetime
	}
	if dst.SendCA == 0 {
		dst.SendCA = src.SendCA
	}
	if dst.ConnAlias == "" {
		dst.ConnAlias = src.ConnAlias
	}
}

func mergeEndpoint(dst, src *Endpoint) {
	if dst.Host == "" {
		dst.Host = src.Host
		dst.HostKind = src.HostKind
	}
	if len(dst.Subnets) == 0 {
		dst.Subnets = src.Subnets
	}
	if !dst.SourceIP.IsValid() {
		dst.SourceIP = src.SourceIP
	}
	if !dst.NextHop.IsValid() {
		dst.NextHop = src.NextHop
	}
	if dst.Updown == "" {
		dst.Updown = src.Updown
	}
	if dst.ID == "" {
		dst.ID = src.ID
	}
	if dst.RSASigKey == "" {
		dst.RSASigKey = src.RSASigKey
	}
	if dst.Cert == "" {
		dst.Cert = src.Cert
	}
	if dst.CKAID == "" {
		dst.CKAID = src.CKAID
	}
	if dst.CA == "" {
		dst.CA = src.CA
	}
	if dst.SendCert == 0 {
		dst.SendCert = src.SendCert
	}
	if dst.AuthBy == 0 {
		dst.AuthBy = src.AuthBy
	}
	if dst.IKEPort == 0 {
		dst.IKEPort = src.IKEPort
	}
}
