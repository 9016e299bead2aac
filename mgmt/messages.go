// Package mgmt implements the internal-client management protocol of
// spec.md §6: newface/destroyface/prefixreg/selfreg/unreg/setstrategy/
// getstrategy/removestrategy, dispatched against an fw.Engine. Grounded on
// the teacher's fw/mgmt package (one Module per verb family, a
// ControlArgs-shaped request/reply body, NACK-on-failure), adapted to this
// daemon's CCN binary encoding, which has no ControlParameters TLV of its
// own: requests and replies instead carry a flat key=value body, the same
// shape tools/nfdc/nfdc_cmd.go's ExecCmd parses off the command line.
package mgmt

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ccnd-project/ccnd/internal/ccnname"
	"github.com/ccnd-project/ccnd/table"
)

// encodeParams renders kv as a deterministic, semicolon-joined key=value
// list (sorted so replies are stable byte-for-byte across calls, which the
// Content Store's digest computation relies on).
func encodeParams(kv map[string]string) []byte {
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(kv[k])
	}
	return []byte(b.String())
}

func parseParams(raw []byte) map[string]string {
	kv := make(map[string]string)
	for _, part := range strings.Split(string(raw), ";") {
		if part == "" {
			continue
		}
		pair := strings.SplitN(part, "=", 2)
		if len(pair) != 2 {
			continue
		}
		kv[pair[0]] = pair[1]
	}
	return kv
}

// ParseRawParams exposes parseParams to callers outside this package — the
// ccndc client needs it to sniff a reply body's shape (a "code" key means
// StatusResponse, everything else means an echoed request) before choosing
// which Decode* function to call.
func ParseRawParams(raw []byte) map[string]string { return parseParams(raw) }

// FaceInstance is the newface/destroyface request/reply body.
type FaceInstance struct {
	IPProto string
	Address string
	Port    uint16
	FaceID  uint64
}

func (f *FaceInstance) Encode() []byte {
	kv := map[string]string{}
	if f.IPProto != "" {
		kv["proto"] = f.IPProto
	}
	if f.Address != "" {
		kv["address"] = f.Address
	}
	if f.Port != 0 {
		kv["port"] = strconv.Itoa(int(f.Port))
	}
	if f.FaceID != 0 {
		kv["faceid"] = strconv.FormatUint(f.FaceID, 10)
	}
	return encodeParams(kv)
}

func DecodeFaceInstance(raw []byte) *FaceInstance {
	kv := parseParams(raw)
	fi := &FaceInstance{IPProto: kv["proto"], Address: kv["address"]}
	if v, ok := kv["port"]; ok {
		if n, err := strconv.ParseUint(v, 10, 16); err == nil {
			fi.Port = uint16(n)
		}
	}
	if v, ok := kv["faceid"]; ok {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			fi.FaceID = n
		}
	}
	return fi
}

// ForwardingEntry is the prefixreg/selfreg/unreg request/reply body.
type ForwardingEntry struct {
	Prefix   ccnname.Name
	FaceID   uint64
	Flags    table.ForwardFlag
	Lifetime uint32 // seconds
}

func (e *ForwardingEntry) Encode() []byte {
	return encodeParams(map[string]string{
		"prefix":   e.Prefix.String(),
		"faceid":   strconv.FormatUint(e.FaceID, 10),
		"flags":    strconv.FormatUint(uint64(e.Flags), 10),
		"lifetime": strconv.FormatUint(uint64(e.Lifetime), 10),
	})
}

func DecodeForwardingEntry(raw []byte) (*ForwardingEntry, error) {
	kv := parseParams(raw)
	name, err := ccnname.NameFromStr(kv["prefix"])
	if err != nil {
		return nil, fmt.Errorf("mgmt: invalid prefix %q: %w", kv["prefix"], err)
	}
	fe := &ForwardingEntry{Prefix: name}
	if v, ok := kv["faceid"]; ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("mgmt: invalid faceid %q", v)
		}
		fe.FaceID = n
	}
	if v, ok := kv["flags"]; ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("mgmt: invalid flags %q", v)
		}
		fe.Flags = table.ForwardFlag(n)
	}
	if v, ok := kv["lifetime"]; ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("mgmt: invalid lifetime %q", v)
		}
		fe.Lifetime = uint32(n)
	}
	return fe, nil
}

// StrategySelection is the setstrategy/getstrategy/removestrategy body.
type StrategySelection struct {
	Prefix ccnname.Name
	ID     string
	Params map[string]string
}

func (s *StrategySelection) Encode() []byte {
	kv := map[string]string{"prefix": s.Prefix.String()}
	if s.ID != "" {
		kv["id"] = s.ID
	}
	for k, v := range s.Params {
		kv["p."+k] = v
	}
	return encodeParams(kv)
}

func DecodeStrategySelection(raw []byte) (*StrategySelection, error) {
	kv := parseParams(raw)
	name, err := ccnname.NameFromStr(kv["prefix"])
	if err != nil {
		return nil, fmt.Errorf("mgmt: invalid prefix %q: %w", kv["prefix"], err)
	}
	sel := &StrategySelection{Prefix: name, ID: kv["id"], Params: map[string]string{}}
	for k, v := range kv {
		if rest, ok := strings.CutPrefix(k, "p."); ok {
			sel.Params[rest] = v
		}
	}
	return sel, nil
}

// StatusResponse is the NACK body for a failed verb (spec.md §6's
// "StatusResponse wrapped in a NACK content type").
type StatusResponse struct {
	Code int
	Text string
}

func (s *StatusResponse) Encode() []byte {
	return encodeParams(map[string]string{
		"code": strconv.Itoa(s.Code),
		"text": s.Text,
	})
}

// DecodeStatusResponse is used by ccndc to print a NACK reply.
func DecodeStatusResponse(raw []byte) *StatusResponse {
	kv := parseParams(raw)
	code, _ := strconv.Atoi(kv["code"])
	return &StatusResponse{Code: code, Text: kv["text"]}
}
