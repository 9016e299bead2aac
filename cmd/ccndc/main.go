// Package main is ccndc, the management CLI client for the verbs
// mgmt.Thread dispatches: newface, destroyface, prefixreg, selfreg, unreg,
// setstrategy, getstrategy, removestrategy. Grounded on the teacher's
// tools/nfdc/nfdc_cmd.go (Tool.ExecCmd: parse key=value args, send one
// control command, print the structured response), adapted from NDN's
// ControlParameters TLV to this daemon's flat key=value wire body.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ccnd-project/ccnd/face"
	"github.com/ccnd-project/ccnd/internal/ccnb"
	"github.com/ccnd-project/ccnd/internal/ccnname"
	"github.com/ccnd-project/ccnd/mgmt"
	"github.com/spf13/cobra"
)

var socketPath string

var rootCmd = &cobra.Command{
	Use:   "ccndc",
	Short: "Management client for ccnd's internal-client protocol",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "/tmp/.ccnd.sock", "ccnd local-domain socket path")
	for _, verb := range []string{
		"newface", "destroyface", "prefixreg", "selfreg",
		"unreg", "setstrategy", "getstrategy", "removestrategy",
	} {
		rootCmd.AddCommand(newVerbCmd(verb))
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newVerbCmd builds one cobra subcommand per management verb. Each takes a
// free-form list of key=value arguments, exactly like nfdc_cmd.go's
// ExecCmd. Arguments that are not key=value, non-numeric port/faceid/
// lifetime values and a missing prefix are rejected locally; keys the verb
// does not use are ignored, and any other request error comes back from
// the daemon as a NACK.
func newVerbCmd(verb string) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " key=value...",
		Short: "Send a " + verb + " management request",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execVerb(verb, args)
		},
	}
}

func execVerb(verb string, args []string) error {
	kv := make(map[string]string, len(args))
	for _, arg := range args {
		pair := strings.SplitN(arg, "=", 2)
		if len(pair) != 2 {
			return fmt.Errorf("invalid argument %q (want key=value)", arg)
		}
		kv[pair[0]] = pair[1]
	}

	body, err := encodeVerbBody(verb, kv)
	if err != nil {
		return err
	}

	reply, err := send(verb, body)
	if err != nil {
		return err
	}
	printReply(reply)
	return nil
}

// encodeVerbBody builds the right request type for verb and renders it,
// mirroring which mgmt.Decode* function the daemon side uses to parse it.
func encodeVerbBody(verb string, kv map[string]string) ([]byte, error) {
	switch verb {
	case "newface", "destroyface":
		fi := &mgmt.FaceInstance{IPProto: kv["proto"], Address: kv["address"]}
		if v, ok := kv["port"]; ok {
			p, err := strconv.ParseUint(v, 10, 16)
			if err != nil {
				return nil, fmt.Errorf("invalid port %q: %w", v, err)
			}
			fi.Port = uint16(p)
		}
		if v, ok := kv["faceid"]; ok {
			id, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid faceid %q: %w", v, err)
			}
			fi.FaceID = id
		}
		return fi.Encode(), nil

	case "prefixreg", "selfreg", "unreg":
		prefix, err := requirePrefix(kv)
		if err != nil {
			return nil, err
		}
		fe := &mgmt.ForwardingEntry{Prefix: prefix}
		if v, ok := kv["faceid"]; ok {
			id, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid faceid %q: %w", v, err)
			}
			fe.FaceID = id
		}
		if v, ok := kv["lifetime"]; ok {
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid lifetime %q: %w", v, err)
			}
			fe.Lifetime = uint32(n)
		}
		return fe.Encode(), nil

	case "setstrategy", "getstrategy", "removestrategy":
		prefix, err := requirePrefix(kv)
		if err != nil {
			return nil, err
		}
		sel := &mgmt.StrategySelection{Prefix: prefix, ID: kv["id"]}
		return sel.Encode(), nil

	default:
		return nil, fmt.Errorf("unknown verb %s", verb)
	}
}

func requirePrefix(kv map[string]string) (ccnname.Name, error) {
	v, ok := kv["prefix"]
	if !ok {
		return nil, fmt.Errorf("missing prefix=/ccn/uri argument")
	}
	return ccnname.NameFromStr(v)
}

// send opens a fresh Unix-domain connection, issues one Interest naming
// verb/body under mgmt.LocalPrefix, and reads back the single reply
// Content Object — the daemon answers management requests synchronously
// and closes nothing else on the connection, so one request per dial
// keeps the client simple (mirrors nfdc's one-shot-per-command model).
func send(verb string, body []byte) (*ccnb.ContentObject, error) {
	t, err := face.DialUnix(socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", socketPath, err)
	}
	defer t.Close()

	name := mgmt.LocalPrefix.Append(
		ccnname.NewGenericComponent(verb),
		ccnname.NewBytesComponent(ccnname.TypeGenericNameComponent, body),
	)
	it := &ccnb.Interest{Name: name}
	codec := ccnb.TLVCodec{}
	wire, err := codec.EncodeInterest(it)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	if err := t.Send(wire); err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}

	raw, err := t.ReadFrame()
	if err != nil {
		return nil, fmt.Errorf("reading reply: %w", err)
	}
	return codec.DecodeData(raw)
}

// printReply sniffs the reply body's shape (a NACK carries a "code" key;
// anything else is an echoed request) and prints accordingly.
func printReply(co *ccnb.ContentObject) {
	kv := mgmt.ParseRawParams(co.Content)
	if _, isStatus := kv["code"]; isStatus {
		status := mgmt.DecodeStatusResponse(co.Content)
		fmt.Fprintf(os.Stderr, "error %d: %s\n", status.Code, status.Text)
		os.Exit(1)
		return
	}

	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	for _, k := range keys {
		fmt.Printf("%s=%s\n", k, kv[k])
	}
}
