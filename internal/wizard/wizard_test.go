package wizard

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viewheel/backend/internal/config"
	"github.com/viewheel/backend/internal/models"
	"github.com/viewheel/backend/internal/notify"
	"github.com/viewheel/backend/internal/testutil"
)

type memFile struct {
	name  string
	ctype string
	size  int64
	data  []byte
}

type readSeekNopCloser struct{ *bytes.Reader }

func (readSeekNopCloser) Close() error { return nil }

func (f *memFile) Name() string { return f.name }
func (f *memFile) ContentType() string { return f.ctype }
func (f *memFile) Size() int64 {
	if f.size != 0 {
		return f.size
	}
	return int64(len(f.data))
}
func (f *memFile) Open() (io.ReadCloser, error) {
	return readSeekNopCloser{bytes.NewReader(f.data)}, nil
}

type fixedProber struct {
	d   time.Duration
	err error
}

func (p fixedProber) Duration(context.Context, File) (time.Duration, error) { return p.d, p.err }

type recordingUploader struct {
	reqs []UploadRequest
	errs []error
}

func (u *recordingUploader) Upload(_ context.Context, req UploadRequest) (*models.DriveFile, error) {
	u.reqs = append(u.reqs, req)
	if len(u.errs) > 0 {
		err := u.errs[0]
		u.errs = u.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &models.DriveFile{ID: "drive-1", Name: req.Name, MimeType: "video/mp4"}, nil
}

var fixedNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func newTestWizard(prober Prober, uploader Uploader, deps ...func(*Deps)) *Wizard {
	d := Deps{Prober: prober, Uploader: uploader}
	for _, fn := range deps {
		fn(&d)
	}
	return New(d, WithClock(func() time.Time { return fixedNow }), WithLocation(time.UTC))
}

func mp4File(size int64) *memFile {
	return &memFile{name: "ad.mp4", ctype: RequiredMIME, size: size}
}

func TestSelectFile_RejectsNonMP4(t *testing.T) {
	for _, ctype := range []string{"video/quicktime", "video/webm", "image/png", ""} {
		w := newTestWizard(fixedProber{d: time.Minute}, nil)
		require.NoError(t, w.SelectFile(context.Background(), mp4File(10)))

		err := w.SelectFile(context.Background(), &memFile{name: "x", ctype: ctype, size: 10})
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr, ctype)
		assert.Equal(t, "File must be in MP4 format", vErr.Message)
		assert.Nil(t, w.Selection(), "failed validation clears selection")
	}
}

func TestSelectFile_SizeLimit(t *testing.T) {
	tests := []struct {
		size int64
		ok   bool
	}{
		{1, true},
		{50 * 1024 * 1024, true},
		{MaxFileSize - 1, true},
		{MaxFileSize, true},
		{MaxFileSize + 1, false},
		{5 * MaxFileSize, false},
	}
	for _, tt := range tests {
		w := newTestWizard(fixedProber{d: time.Minute}, nil)
		err := w.SelectFile(context.Background(), mp4File(tt.size))
		if tt.ok {
			assert.NoError(t, err, "size %d", tt.size)
			assert.NotNil(t, w.Selection())
		} else {
			assert.EqualError(t, err, "File size must be less than 1GB", "size %d", tt.size)
			assert.Nil(t, w.Selection())
		}
	}
}

func TestSelectFile_DurationAndCost(t *testing.T) {
	tests := []struct {
		d    time.Duration
		ok   bool
		cost int64
	}{
		{500 * time.Millisecond, true, 1000},
		{59 * time.Second, true, 1000},
		{60 * time.Second, true, 1000},
		{61 * time.Second, true, 2000},
		{90 * time.Second, true, 2000},
		{299*time.Second + 900*time.Millisecond, true, 5000},
		{300 * time.Second, true, 5000},
		{300*time.Second + time.Millisecond, false, 0},
		{10 * time.Minute, false, 0},
	}
	for _, tt := range tests {
		w := newTestWizard(fixedProber{d: tt.d}, nil)
		err := w.SelectFile(context.Background(), mp4File(1024))
		if tt.ok {
			require.NoError(t, err, "duration %s", tt.d)
		} else {
			assert.EqualError(t, err, "Video duration must be less than 5 minutes", "duration %s", tt.d)
		}
		assert.Equal(t, tt.cost, w.Cost(), "duration %s", tt.d)
	}
}

func TestSelectFile_MetadataFailure(t *testing.T) {
	w := newTestWizard(fixedProber{err: errors.New("moov atom not found")}, nil)
	err := w.SelectFile(context.Background(), mp4File(1024))
	assert.EqualError(t, err, "Failed to load video metadata")
	assert.Nil(t, w.Selection())
}

func TestSelectFile_ZeroDurationRejected(t *testing.T) {
	w := newTestWizard(fixedProber{d: 0}, nil)
	err := w.SelectFile(context.Background(), mp4File(1024))
	assert.EqualError(t, err, "Failed to load video metadata")
	assert.Nil(t, w.Selection())
	assert.Equal(t, int64(0), w.Cost())

	assert.EqualError(t, w.Next(), "Please select a video file")
	assert.Equal(t, StepUpload, w.Step())
}

func TestValidateTimeframe(t *testing.T) {
	tests := []struct {
		name    string
		date    string
		clock   string
		wantErr string
	}{
		{"missing date", "", "12:00", "Please select both date and time"},
		{"missing time", "2026-03-14", "", "Please select both date and time"},
		{"not a date", "2026-02-30", "12:00", "Please select a valid date and time"},
		{"past", "2026-03-14", "09:59", "Selected time must be in the future"},
		{"now", "2026-03-14", "10:00", "Selected time must be in the future"},
		{"one hour ahead", "2026-03-14", "11:00", "Please select a time at least 2 hours from now"},
		{"exactly two hours", "2026-03-14", "12:00", "Please select a time at least 2 hours from now"},
		{"just over two hours", "2026-03-14", "12:01", ""},
		{"three hours", "2026-03-14", "13:00", ""},
		{"next week", "2026-03-21", "08:30", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newTestWizard(nil, nil)
			w.SetTimeframe(tt.date, tt.clock)
			got, err := w.ValidateTimeframe()
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.After(fixedNow.Add(MinLeadTime)))
		})
	}
}

func TestValidateTimeframe_UsesLocation(t *testing.T) {
	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	// 10:00 UTC is 03:00 in Los Angeles on this date
	w := New(Deps{}, WithClock(func() time.Time { return fixedNow }), WithLocation(la))
	w.SetTimeframe("2026-03-14", "06:00")
	_, err = w.ValidateTimeframe()
	assert.NoError(t, err)

	w.SetTimeframe("2026-03-14", "04:30")
	_, err = w.ValidateTimeframe()
	assert.EqualError(t, err, "Please select a time at least 2 hours from now")
}

func TestNavigation_KeepsStateWhenGoingBack(t *testing.T) {
	w := newTestWizard(fixedProber{d: 90 * time.Second}, nil)

	assert.Error(t, w.Next(), "cannot leave upload without a file")
	require.NoError(t, w.SelectFile(context.Background(), mp4File(1024)))
	require.NoError(t, w.Next())
	assert.Equal(t, StepTimeframe, w.Step())

	w.SetTimeframe("2026-03-14", "11:00")
	assert.Error(t, w.Next())
	w.SetTimeframe("2026-03-14", "15:00")
	require.NoError(t, w.Next())
	assert.Equal(t, StepPayment, w.Step())

	w.Back()
	assert.Equal(t, StepTimeframe, w.Step())
	date, clock := w.Timeframe()
	assert.Equal(t, "2026-03-14", date)
	assert.Equal(t, "15:00", clock)

	w.Back()
	assert.Equal(t, StepUpload, w.Step())
	assert.NotNil(t, w.Selection())
	assert.Equal(t, int64(2000), w.Cost())

	w.Back()
	assert.Equal(t, StepUpload, w.Step())
}

func TestSummary(t *testing.T) {
	w := newTestWizard(fixedProber{d: 90 * time.Second}, nil)
	require.NoError(t, w.SelectFile(context.Background(), mp4File(50*1024*1024)))

	s := w.Summary()
	assert.Equal(t, "ad.mp4", s.FileName)
	assert.Equal(t, "50 MB", s.Size)
	assert.Equal(t, "1:30", s.Duration)
	assert.Equal(t, int64(2000), s.Cost)
	assert.Equal(t, "2 minutes × 1,000 $VIEWS", s.Breakdown)
}

type payFixture struct {
	chain  *testutil.FakeChain
	wallet *testutil.FakeWallet
	cfg    config.SolanaConfig
	rec    *notify.Recorder
}

func newPayFixture() *payFixture {
	f := &payFixture{
		chain:  testutil.NewFakeChain(),
		wallet: testutil.NewFakeWallet(),
		rec:    &notify.Recorder{},
	}
	mint := solana.NewWallet().PublicKey()
	treasury := solana.NewWallet().PublicKey()
	f.chain.AddMint(mint, 6)
	f.chain.Fund(treasury, mint, 0)
	f.chain.Fund(f.wallet.Key, mint, 1_000_000*1_000_000)
	f.cfg = config.SolanaConfig{MintAddress: mint.String(), TreasuryAddress: treasury.String()}
	return f
}

func (f *payFixture) deps(d *Deps) {
	d.Chain = f.chain
	d.Solana = f.cfg
	d.Notifier = f.rec
}

func readyToPay(t *testing.T, w *Wizard) {
	t.Helper()
	require.NoError(t, w.SelectFile(context.Background(), mp4File(50*1024*1024)))
	require.NoError(t, w.Next())
	w.SetTimeframe("2026-03-14", "13:00")
	require.NoError(t, w.Next())
}

func TestPay_UploadsWithSignature(t *testing.T) {
	f := newPayFixture()
	up := &recordingUploader{}
	w := newTestWizard(fixedProber{d: 90 * time.Second}, up, f.deps)
	readyToPay(t, w)

	file, err := w.Pay(context.Background(), f.wallet)
	require.NoError(t, err)
	require.NotNil(t, file)
	assert.Equal(t, StepComplete, w.Step())

	require.Len(t, up.reqs, 1)
	require.NotNil(t, w.Signature())
	req := up.reqs[0]
	assert.Equal(t, w.Signature().String(), req.Tx)
	assert.Equal(t, f.wallet.Key.String(), req.Wallet)
	assert.Equal(t, "2026-03-14T13:00:00.000Z", req.WhenISO)
	assert.Equal(t, "ad.mp4", req.Name)
	assert.Equal(t, []solana.Signature{*w.Signature()}, f.wallet.Confirmed)
}

func TestPay_UploadFailureRetriesWithoutPaying(t *testing.T) {
	f := newPayFixture()
	up := &recordingUploader{errs: []error{errors.New("Drive quota exceeded")}}
	w := newTestWizard(fixedProber{d: 90 * time.Second}, up, f.deps)
	readyToPay(t, w)

	_, err := w.Pay(context.Background(), f.wallet)
	var upErr *UploadError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, "Drive quota exceeded", err.Error())
	assert.Equal(t, StepPayment, w.Step())
	assert.Equal(t, 1, f.wallet.SentCount())

	w.Back()
	assert.Equal(t, StepPayment, w.Step(), "paid submission cannot be edited")

	file, err := w.RetryUpload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "drive-1", file.ID)
	assert.Equal(t, StepComplete, w.Step())

	require.Len(t, up.reqs, 2)
	assert.Equal(t, up.reqs[0].Tx, up.reqs[1].Tx)
	assert.Equal(t, 1, f.wallet.SentCount(), "retry never pays again")
}

func TestPay_PaymentFailureSkipsUpload(t *testing.T) {
	f := newPayFixture()
	f.wallet.SendErr = testutil.ErrRejected
	up := &recordingUploader{}
	w := newTestWizard(fixedProber{d: 90 * time.Second}, up, f.deps)
	readyToPay(t, w)

	_, err := w.Pay(context.Background(), f.wallet)
	require.Error(t, err)
	assert.Empty(t, up.reqs)
	assert.Nil(t, w.Signature())

	_, err = w.RetryUpload(context.Background())
	assert.ErrorIs(t, err, ErrNotPaid)
}

func TestPay_WrongStep(t *testing.T) {
	w := newTestWizard(fixedProber{d: time.Minute}, &recordingUploader{})
	_, err := w.Pay(context.Background(), testutil.NewFakeWallet())
	assert.ErrorIs(t, err, ErrWrongStep)
}

func TestMarkPaid_UploadsWithoutPaying(t *testing.T) {
	up := &recordingUploader{}
	w := newTestWizard(fixedProber{d: 90 * time.Second}, up)

	sig := solana.SignatureFromBytes(bytes.Repeat([]byte{7}, 64))
	assert.ErrorIs(t, w.MarkPaid(sig, "Payer"), ErrWrongStep)

	readyToPay(t, w)
	require.NoError(t, w.MarkPaid(sig, "Payer"))

	file, err := w.Pay(context.Background(), testutil.NewFakeWallet())
	require.NoError(t, err)
	assert.Equal(t, "drive-1", file.ID)
	require.Len(t, up.reqs, 1)
	assert.Equal(t, sig.String(), up.reqs[0].Tx)
	assert.Equal(t, "Payer", up.reqs[0].Wallet)
}
