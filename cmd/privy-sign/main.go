package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/privy-io/privy-go/pkg/authorization"
	"github.com/privy-io/privy-go/pkg/hpke"
)

func main() {
	app := &cli.App{
		Name:  "privy-sign",
		Usage: "Sign Privy API requests and manage authorization keys",
		Description: `Utilities for working with Privy request authorization signatures.

This tool can:
- Generate authorization signatures for a request, for debugging or scripting
- Generate P-256 authorization key pairs
- Print the canonical signature payload for a request
- Seal and open HPKE-encrypted payloads`,
		Version: "1.0.0",
		Commands: []*cli.Command{
			{
				Name:  "sign",
				Usage: "Generate authorization signatures for a request",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "app-id",
						Usage:    "Privy application ID",
						Required: true,
					},
					&cli.StringSliceFlag{
						Name:  "key",
						Usage: "Authorization private key (base64 PKCS#8, may be repeated)",
					},
					&cli.StringFlag{
						Name:  "method",
						Usage: "HTTP method",
						Value: "POST",
					},
					&cli.StringFlag{
						Name:     "url",
						Usage:    "Full request URL",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "body",
						Usage: "JSON request body (string) or path to a file",
					},
				},
				Action: signCommand,
			},
			{
				Name:  "payload",
				Usage: "Print the canonical signature payload for a request",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "app-id",
						Usage:    "Privy application ID",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "method",
						Usage: "HTTP method",
						Value: "POST",
					},
					&cli.StringFlag{
						Name:     "url",
						Usage:    "Full request URL",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "body",
						Usage: "JSON request body (string) or path to a file",
					},
				},
				Action: payloadCommand,
			},
			{
				Name:   "keygen",
				Usage:  "Generate a P-256 authorization key pair",
				Action: keygenCommand,
			},
			{
				Name:  "hpke",
				Usage: "HPKE encryption utilities",
				Subcommands: []*cli.Command{
					{
						Name:  "keygen",
						Usage: "Generate a P-256 HPKE recipient key pair",
						Action: func(c *cli.Context) error {
							pair, err := hpke.GenerateKeyPair()
							if err != nil {
								return err
							}
							fmt.Printf("Public key:  %s\n", pair.PublicKey)
							fmt.Printf("Private key: %s\n", pair.PrivateKey)
							return nil
						},
					},
					{
						Name:  "seal",
						Usage: "Encrypt a message to a recipient public key",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     "public-key",
								Usage:    "Recipient public key (base64)",
								Required: true,
							},
							&cli.StringFlag{
								Name:     "message",
								Usage:    "Message to encrypt",
								Required: true,
							},
						},
						Action: hpkeSealCommand,
					},
					{
						Name:  "open",
						Usage: "Decrypt a sealed message",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     "private-key",
								Usage:    "Recipient private key (base64 DER)",
								Required: true,
							},
							&cli.StringFlag{
								Name:     "encapsulated-key",
								Usage:    "Encapsulated key from seal (base64)",
								Required: true,
							},
							&cli.StringFlag{
								Name:     "ciphertext",
								Usage:    "Ciphertext from seal (base64)",
								Required: true,
							},
						},
						Action: hpkeOpenCommand,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// loadBody parses the --body flag, which holds either inline JSON or a path
// to a JSON file. An absent flag means an empty body.
func loadBody(c *cli.Context) (map[string]any, error) {
	raw := c.String("body")
	if raw == "" {
		return nil, nil
	}

	data := []byte(raw)
	if _, statErr := os.Stat(raw); statErr == nil {
		fileData, readErr := os.ReadFile(raw)
		if readErr != nil {
			return nil, fmt.Errorf("failed to read body file: %w", readErr)
		}
		data = fileData
	}

	var body map[string]any
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("body is not a JSON object: %w", err)
	}
	return body, nil
}

func signCommand(c *cli.Context) error {
	keys := c.StringSlice("key")
	if len(keys) == 0 {
		return fmt.Errorf("at least one --key is required")
	}

	body, err := loadBody(c)
	if err != nil {
		return err
	}

	builder := authorization.NewBuilder()
	for _, key := range keys {
		builder.AddAuthorizationKey(key)
	}
	signCtx, err := builder.Build()
	if err != nil {
		return fmt.Errorf("failed to build authorization context: %w", err)
	}

	signatures, err := signCtx.GenerateSignatures(c.String("method"), c.String("url"), body, c.String("app-id"))
	if err != nil {
		return fmt.Errorf("failed to generate signatures: %w", err)
	}

	fmt.Println(strings.Join(signatures, ","))
	return nil
}

func payloadCommand(c *cli.Context) error {
	body, err := loadBody(c)
	if err != nil {
		return err
	}

	payload := authorization.NewSignaturePayload(c.String("method"), c.String("url"), body, c.String("app-id"))
	canonical, err := payload.Canonical()
	if err != nil {
		return fmt.Errorf("failed to canonicalize payload: %w", err)
	}

	fmt.Println(string(canonical))
	return nil
}

func keygenCommand(c *cli.Context) error {
	pair, err := authorization.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("failed to generate key pair: %w", err)
	}

	fmt.Printf("Private key: %s%s\n", authorization.KeyMaterialPrefix, pair.PrivateKey)
	fmt.Printf("Public key:  %s\n", pair.PublicKey)
	return nil
}

func hpkeSealCommand(c *cli.Context) error {
	sealed, err := hpke.Seal(c.String("public-key"), []byte(c.String("message")))
	if err != nil {
		return fmt.Errorf("failed to seal message: %w", err)
	}

	fmt.Printf("Encapsulated key: %s\n", sealed.EncapsulatedKey)
	fmt.Printf("Ciphertext:       %s\n", sealed.Ciphertext)
	return nil
}

func hpkeOpenCommand(c *cli.Context) error {
	plaintext, err := hpke.Open(c.String("private-key"), c.String("encapsulated-key"), c.String("ciphertext"))
	if err != nil {
		return fmt.Errorf("failed to open message: %w", err)
	}

	fmt.Println(string(plaintext))
	return nil
}
