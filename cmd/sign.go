package cmd

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/dealwire/internal/publish"
	"github.com/xkilldash9x/dealwire/internal/signing"
)

// now is swapped in tests.
var now = time.Now

type signOptions struct {
	base  string
	title string
	link  string
	image string
	price string
	rrp   string
}

// newSignCmd creates the `sign` command, which prints a ready-to-call
// /publish URL signed with the configured secret.
func newSignCmd() *cobra.Command {
	opts := &signOptions{}

	signCmd := &cobra.Command{
		Use:   "sign",
		Short: "Prints a signed /publish URL for a deal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			signer, err := signing.NewSigner(cfg.Publish().Secret)
			if err != nil {
				return fmt.Errorf("cannot sign: %w", err)
			}
			if opts.base == "" {
				opts.base = "http://localhost:" + strconv.Itoa(cfg.Server().Port)
			}
			link, err := signedPublishURL(signer, opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), link)
			return nil
		},
	}

	f := signCmd.Flags()
	f.StringVar(&opts.base, "base", "", "server base URL (default http://localhost:<server.port>)")
	f.StringVarP(&opts.title, "title", "t", "", "deal title")
	f.StringVarP(&opts.link, "url", "u", "", "deal URL")
	f.StringVar(&opts.image, "image", "", "image URL")
	f.StringVarP(&opts.price, "price", "p", "", "current price")
	f.StringVarP(&opts.rrp, "rrp", "r", "", "recommended retail price")
	_ = signCmd.MarkFlagRequired("title")
	_ = signCmd.MarkFlagRequired("url")
	return signCmd
}

func signedPublishURL(signer *signing.Signer, opts *signOptions) (string, error) {
	base, err := url.Parse(opts.base)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("invalid base URL %q", opts.base)
	}

	values := url.Values{}
	set := func(key, value string) {
		if value != "" {
			values.Set(key, value)
		}
	}
	set(publish.ParamTitle, opts.title)
	set(publish.ParamURL, opts.link)
	set(publish.ParamImage, opts.image)
	set(publish.ParamPrice, opts.price)
	set(publish.ParamRRP, opts.rrp)
	values.Set(publish.ParamTimestamp, strconv.FormatInt(now().Unix(), 10))

	base.Path = strings.TrimSuffix(base.Path, "/") + "/publish"
	base.RawQuery = signer.SignedQuery(values)
	return base.String(), nil
}
