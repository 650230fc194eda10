// Command adqueue queues an ad from the command line: it validates the
// video and airtime, pays the $VIEWS fee from a keypair file and uploads
// the video to the ad-queue server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/viewheel/backend/internal/checkout"
	"github.com/viewheel/backend/internal/config"
	"github.com/viewheel/backend/internal/notify"
	"github.com/viewheel/backend/internal/token"
	"github.com/viewheel/backend/internal/wizard"
)

const defaultEndpoint = "http://localhost:8089/api/drive-upload"

type options struct {
	configPath string
	file       string
	date       string
	clock      string
	endpoint   string
	keypair    string
	rpc        string
	mint       string
	treasury   string
	retryTx    string
	wallet     string
	dryRun     bool
}

func parseFlags(args []string, out io.Writer) (*options, error) {
	o := &options{}
	fs := flag.NewFlagSet("adqueue", flag.ContinueOnError)
	fs.SetOutput(out)

	fs.StringVar(&o.configPath, "config", "", "YAML config file for Solana defaults")
	fs.StringVar(&o.file, "file", "", "MP4 video to queue")
	fs.StringVar(&o.date, "date", "", "airtime date, YYYY-MM-DD (local time)")
	fs.StringVar(&o.clock, "time", "", "airtime clock, HH:MM (local time)")
	fs.StringVar(&o.endpoint, "endpoint", defaultEndpoint, "upload endpoint URL")
	fs.StringVar(&o.keypair, "keypair", "", "solana-keygen file that pays the fee")
	fs.StringVar(&o.rpc, "rpc", "", "Solana RPC URL (overrides config)")
	fs.StringVar(&o.mint, "mint", "", "$VIEWS mint address (overrides config)")
	fs.StringVar(&o.treasury, "treasury", "", "treasury address (overrides config)")
	fs.StringVar(&o.retryTx, "retry-tx", "", "signature of an earlier payment; only the upload is retried")
	fs.StringVar(&o.wallet, "wallet", "", "payer address recorded with -retry-tx (defaults to the keypair's)")
	fs.BoolVar(&o.dryRun, "dry-run", false, "validate and print the summary without paying")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	switch {
	case o.file == "":
		return nil, errors.New("-file is required")
	case o.date == "" || o.clock == "":
		return nil, errors.New("-date and -time are required")
	case !o.dryRun && o.retryTx == "" && o.keypair == "":
		return nil, errors.New("-keypair is required to pay")
	case o.retryTx != "" && o.wallet == "" && o.keypair == "":
		return nil, errors.New("-retry-tx needs -wallet or -keypair")
	}
	return o, nil
}

// consoleNotifier prints notices the way the web app shows toasts.
type consoleNotifier struct {
	out io.Writer
}

func (c consoleNotifier) Notify(_ context.Context, n notify.Notice) {
	if n.Description != "" {
		fmt.Fprintf(c.out, "[%s] %s: %s\n", n.Level, n.Title, n.Description)
		return
	}
	fmt.Fprintf(c.out, "[%s] %s\n", n.Level, n.Title)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	o, err := parseFlags(args, out)
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return err
	}
	if o.rpc != "" {
		cfg.Solana.RPCEndpoint = o.rpc
	}
	if o.mint != "" {
		cfg.Solana.MintAddress = o.mint
	}
	if o.treasury != "" {
		cfg.Solana.TreasuryAddress = o.treasury
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	chain := token.NewRPCChain(cfg.Solana.RPCEndpoint)
	w := wizard.New(wizard.Deps{
		Uploader: &wizard.HTTPUploader{Endpoint: o.endpoint},
		Solana:   cfg.Solana,
		Chain:    chain,
		Notifier: consoleNotifier{out: out},
		Logger:   logger,
	}, wizard.WithLocation(time.Local))

	file, err := wizard.OpenLocalFile(o.file)
	if err != nil {
		return err
	}
	if err := w.SelectFile(ctx, file); err != nil {
		return err
	}
	if err := w.Next(); err != nil {
		return err
	}
	w.SetTimeframe(o.date, o.clock)
	if err := w.Next(); err != nil {
		return err
	}

	printSummary(out, w.Summary())
	if o.dryRun {
		return nil
	}

	var wallet *checkout.KeypairWallet
	if o.keypair != "" {
		if wallet, err = checkout.NewKeypairWallet(o.keypair, chain.Client()); err != nil {
			return err
		}
	}

	if o.retryTx != "" {
		sig, err := solana.SignatureFromBase58(o.retryTx)
		if err != nil {
			return fmt.Errorf("invalid -retry-tx: %w", err)
		}
		payer := o.wallet
		if payer == "" {
			pk, _ := wallet.Connect(ctx)
			payer = pk.String()
		}
		if err := w.MarkPaid(sig, payer); err != nil {
			return err
		}
		f, err := w.RetryUpload(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Uploaded %s (%s)\n", f.Name, f.WebViewLink)
		return nil
	}

	f, err := w.Pay(ctx, wallet)
	if err != nil {
		var upErr *wizard.UploadError
		if errors.As(err, &upErr) {
			fmt.Fprintf(out, "Payment %s went through but the upload failed.\nRetry with: -retry-tx %s\n", upErr.Signature, upErr.Signature)
		}
		return err
	}
	fmt.Fprintf(out, "Paid with %s\nUploaded %s (%s)\n", w.Signature(), f.Name, f.WebViewLink)
	return nil
}

func printSummary(out io.Writer, s wizard.Summary) {
	fmt.Fprintf(out, "File:     %s (%s, %s)\n", s.FileName, s.Size, s.Duration)
	fmt.Fprintf(out, "Airtime:  %s\n", s.When.Format("Mon Jan 2, 2006 3:04 PM MST"))
	fmt.Fprintf(out, "Cost:     %s $VIEWS (%s)\n", wizard.FormatTokens(s.Cost), s.Breakdown)
}
