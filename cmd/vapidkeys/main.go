// Command vapidkeys prints a fresh VAPID key pair.
//
//	vapidkeys --subject mailto:ops@example.com
//	vapidkeys --subject https://example.com --format json
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/mbarradev-debug/divisapp-sub000/pkg/vapid"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type keyPair struct {
	Subject    string `json:"subject"`
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`
}

func run(args []string, out io.Writer) error {
	var subject, format string
	flagSet := pflag.NewFlagSet("vapidkeys", pflag.ContinueOnError)
	flagSet.SetOutput(out)
	flagSet.StringVarP(&subject, "subject", "s", "", "contact URI for push services (mailto: or https:)")
	flagSet.StringVarP(&format, "format", "f", "env", "output format: env or json")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if subject == "" {
		return errors.New("--subject is required")
	}

	keys, err := vapid.GenerateKeys(subject)
	if err != nil {
		return err
	}
	pair := keyPair{Subject: keys.Subject(), PublicKey: keys.PublicKey(), PrivateKey: keys.PrivateKey()}

	switch format {
	case "env":
		_, err = fmt.Fprintf(out, "VAPID_SUBJECT=%s\nVAPID_PUBLIC_KEY=%s\nVAPID_PRIVATE_KEY=%s\n",
			pair.Subject, pair.PublicKey, pair.PrivateKey)
		return err
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(pair)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
