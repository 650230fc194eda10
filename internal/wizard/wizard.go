// Package wizard drives an ad submission from file selection through
// payment to delivery. A Wizard is not safe for concurrent use.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/viewheel/backend/internal/checkout"
	"github.com/viewheel/backend/internal/config"
	"github.com/viewheel/backend/internal/models"
	"github.com/viewheel/backend/internal/notify"
	"github.com/viewheel/backend/internal/token"
)

type Step int

const (
	StepUpload Step = iota
	StepTimeframe
	StepPayment
	StepComplete
)

func (s Step) String() string {
	switch s {
	case StepUpload:
		return "upload"
	case StepTimeframe:
		return "timeframe"
	case StepPayment:
		return "payment"
	case StepComplete:
		return "complete"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

const (
	RequiredMIME    = "video/mp4"
	MaxFileSize     = int64(1 << 30)
	MaxDuration     = 300 * time.Second
	MinLeadTime     = 2 * time.Hour
	TokensPerMinute = 1000

	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

var (
	ErrWrongStep = errors.New("action not available at this step")
	ErrNotPaid   = errors.New("no confirmed payment to attach the upload to")
)

// ValidationError is an input problem the user can fix by choosing again.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Message: msg}
}

// UploadError means the payment went through but delivery did not.
// RetryUpload resends without paying again.
type UploadError struct {
	Signature solana.Signature
	Err       error
}

func (e *UploadError) Error() string { return e.Err.Error() }
func (e *UploadError) Unwrap() error { return e.Err }

// UploadRequest is what the proxy receives for one paid submission.
type UploadRequest struct {
	File    File
	Name    string
	WhenISO string
	Wallet  string
	Tx      string
}

// Uploader delivers a paid submission.
type Uploader interface {
	Upload(ctx context.Context, req UploadRequest) (*models.DriveFile, error)
}

// Deps are the collaborators a Wizard needs.
type Deps struct {
	Prober   Prober
	Uploader Uploader
	Solana   config.SolanaConfig
	Chain    token.Chain
	Notifier notify.Notifier
	Logger   *slog.Logger
}

// Option tweaks a Wizard.
type Option func(*Wizard)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(w *Wizard) { w.now = now }
}

// WithLocation sets the zone date and time inputs are read in.
func WithLocation(loc *time.Location) Option {
	return func(w *Wizard) { w.loc = loc }
}

// Selection is a validated file.
type Selection struct {
	File     File
	Duration time.Duration
}

// Summary is the payment step's recap.
type Summary struct {
	FileName  string
	Size      string
	Duration  string
	When      time.Time
	Cost      int64
	Breakdown string
}

type Wizard struct {
	deps Deps
	now  func() time.Time
	loc  *time.Location
	log  *slog.Logger

	step      Step
	selection *Selection
	date      string
	clock     string
	when      time.Time

	wallet    string
	signature *solana.Signature
	result    *models.DriveFile
}

func New(deps Deps, opts ...Option) *Wizard {
	if deps.Prober == nil {
		deps.Prober = MP4Prober{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	w := &Wizard{
		deps: deps,
		now:  time.Now,
		loc:  time.Local,
		log:  deps.Logger.With("component", "wizard"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Wizard) Step() Step { return w.step }
func (w *Wizard) Selection() *Selection { return w.selection }
func (w *Wizard) Signature() *solana.Signature { return w.signature }
func (w *Wizard) Result() *models.DriveFile { return w.result }
func (w *Wizard) Timeframe() (date, clock string) { return w.date, w.clock }

func (w *Wizard) notify(ctx context.Context, n notify.Notice) {
	if w.deps.Notifier != nil {
		w.deps.Notifier.Notify(ctx, n)
	}
}

// SelectFile validates f and makes it the selection. Any failure clears
// the current selection.
func (w *Wizard) SelectFile(ctx context.Context, f File) error {
	if w.step != StepUpload {
		return ErrWrongStep
	}
	w.selection = nil

	if f.ContentType() != RequiredMIME {
		return invalid("file", "File must be in MP4 format")
	}
	if f.Size() > MaxFileSize {
		return invalid("file", "File size must be less than 1GB")
	}

	d, err := w.deps.Prober.Duration(ctx, f)
	if err == nil && d <= 0 {
		err = errNoDuration
	}
	if err != nil {
		w.log.Debug("reading duration failed", "file", f.Name(), "error", err)
		return invalid("file", "Failed to load video metadata")
	}
	if d > MaxDuration {
		return invalid("file", "Video duration must be less than 5 minutes")
	}

	w.selection = &Selection{File: f, Duration: d}
	return nil
}

// SetTimeframe records the chosen local date (YYYY-MM-DD) and time (HH:MM).
func (w *Wizard) SetTimeframe(date, clock string) {
	w.date = date
	w.clock = clock
}

// ValidateTimeframe resolves the chosen date and time against the clock.
// It accepts only instants strictly more than MinLeadTime ahead.
func (w *Wizard) ValidateTimeframe() (time.Time, error) {
	if w.date == "" || w.clock == "" {
		return time.Time{}, invalid("timeframe", "Please select both date and time")
	}
	t, err := time.ParseInLocation(DateLayout+" "+ClockLayout, w.date+" "+w.clock, w.loc)
	if err != nil {
		return time.Time{}, invalid("timeframe", "Please select a valid date and time")
	}

	now := w.now()
	if !t.After(now) {
		return time.Time{}, invalid("timeframe", "Selected time must be in the future")
	}
	if !t.After(now.Add(MinLeadTime)) {
		return time.Time{}, invalid("timeframe", "Please select a time at least 2 hours from now")
	}
	return t, nil
}

// Next advances one step once the current step's input is valid.
func (w *Wizard) Next() error {
	switch w.step {
	case StepUpload:
		if w.selection == nil {
			return invalid("file", "Please select a video file")
		}
	case StepTimeframe:
		t, err := w.ValidateTimeframe()
		if err != nil {
			return err
		}
		w.when = t
	default:
		return ErrWrongStep
	}
	w.step++
	return nil
}

// Back returns to the previous step, keeping everything entered so far.
// A paid submission can no longer be edited.
func (w *Wizard) Back() {
	if w.signature != nil {
		return
	}
	if w.step > StepUpload && w.step < StepComplete {
		w.step--
	}
}

func billedMinutes(d time.Duration) int64 {
	return int64(math.Ceil(d.Seconds() / 60))
}

// Cost is the price in whole tokens: every started minute is billed.
func (w *Wizard) Cost() int64 {
	if w.selection == nil {
		return 0
	}
	return billedMinutes(w.selection.Duration) * TokensPerMinute
}

// Summary recaps the submission for the payment step.
func (w *Wizard) Summary() Summary {
	s := Summary{When: w.when, Cost: w.Cost()}
	if w.selection != nil {
		s.FileName = w.selection.File.Name()
		s.Size = FormatFileSize(w.selection.File.Size())
		s.Duration = FormatDuration(w.selection.Duration)
		s.Breakdown = CostBreakdown(w.selection.Duration)
	}
	return s
}

// Pay runs the checkout for Cost() with wallet and, once the payment is
// confirmed, uploads the submission. A submission that is already paid
// is only re-uploaded.
func (w *Wizard) Pay(ctx context.Context, wallet checkout.Wallet) (*models.DriveFile, error) {
	if w.step != StepPayment {
		return nil, ErrWrongStep
	}
	if w.signature != nil {
		return w.RetryUpload(ctx)
	}

	var (
		file      *models.DriveFile
		uploadErr error
	)
	co := checkout.New(w.deps.Solana, w.deps.Chain, nil, wallet, checkout.Options{
		Amount: w.Cost(),
		OnPaid: func(sig solana.Signature) {
			w.signature = &sig
			file, uploadErr = w.upload(ctx)
		},
	}, w.deps.Notifier, w.deps.Logger)

	payer, err := co.Connect(ctx)
	if err != nil {
		return nil, err
	}
	w.wallet = payer.String()

	if _, err := co.Pay(ctx); err != nil {
		return nil, err
	}
	return file, uploadErr
}

// MarkPaid records a payment made outside this wizard, such as by an
// earlier run, so that only the upload step remains.
func (w *Wizard) MarkPaid(sig solana.Signature, wallet string) error {
	if w.step != StepPayment {
		return ErrWrongStep
	}
	w.signature = &sig
	w.wallet = wallet
	return nil
}

// RetryUpload resends the paid submission. It never pays again.
func (w *Wizard) RetryUpload(ctx context.Context) (*models.DriveFile, error) {
	if w.signature == nil {
		return nil, ErrNotPaid
	}
	if w.step == StepComplete {
		return w.result, nil
	}
	return w.upload(ctx)
}

func (w *Wizard) upload(ctx context.Context) (*models.DriveFile, error) {
	sig := *w.signature
	req := UploadRequest{
		File:    w.selection.File,
		Name:    w.selection.File.Name(),
		WhenISO: w.when.UTC().Format("2006-01-02T15:04:05.000Z"),
		Wallet:  w.wallet,
		Tx:      sig.String(),
	}

	file, err := w.deps.Uploader.Upload(ctx, req)
	if err != nil {
		w.log.Error("upload after payment failed", "tx", req.Tx, "error", err)
		w.notify(ctx, notify.Error("Upload failed", err))
		return nil, &UploadError{Signature: sig, Err: err}
	}

	w.result = file
	w.step = StepComplete
	w.notify(ctx, notify.Notice{Level: notify.LevelSuccess, Title: "Ad submitted", Description: file.Name})
	return file, nil
}
