package wizard

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func box(typ string, payload ...[]byte) []byte {
	body := bytes.Join(payload, nil)
	out := make([]byte, 8, 8+len(body))
	binary.BigEndian.PutUint32(out, uint32(8+len(body)))
	copy(out[4:], typ)
	return append(out, body...)
}

// minimalMP4 is an ftyp box followed by a moov box holding only a
// version 0 movie header.
func minimalMP4(timescale, duration uint32) []byte {
	ftyp := box("ftyp", []byte("isom"), []byte{0, 0, 2, 0}, []byte("isomiso2mp41"))
	return append(ftyp, box("moov", mvhd(timescale, duration))...)
}

// fragmentedMP4 has an empty movie header; the length lives in mvex/mehd.
func fragmentedMP4(timescale, fragmentDuration uint32) []byte {
	ftyp := box("ftyp", []byte("iso6"), []byte{0, 0, 2, 0}, []byte("iso6mp41"))
	mehd := make([]byte, 8)
	binary.BigEndian.PutUint32(mehd[4:], fragmentDuration)
	mvex := box("mvex", box("mehd", mehd))
	return append(ftyp, box("moov", mvhd(timescale, 0), mvex)...)
}

func mvhd(timescale, duration uint32) []byte {
	p := make([]byte, 100)
	binary.BigEndian.PutUint32(p[12:], timescale)
	binary.BigEndian.PutUint32(p[16:], duration)
	binary.BigEndian.PutUint32(p[20:], 0x00010000) // rate 1.0
	binary.BigEndian.PutUint16(p[24:], 0x0100)     // volume 1.0
	binary.BigEndian.PutUint32(p[36:], 0x00010000) // identity matrix
	binary.BigEndian.PutUint32(p[52:], 0x00010000)
	binary.BigEndian.PutUint32(p[68:], 0x40000000)
	binary.BigEndian.PutUint32(p[96:], 2) // next track id
	return box("mvhd", p)
}

func TestMP4Prober(t *testing.T) {
	tests := []struct {
		name      string
		timescale uint32
		duration  uint32
		want      time.Duration
	}{
		{"ninety seconds", 1000, 90_000, 90 * time.Second},
		{"fractional", 600, 1_000, 1666666666 * time.Nanosecond},
		{"five minutes", 90000, 300 * 90000, 5 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &memFile{name: "a.mp4", ctype: RequiredMIME, data: minimalMP4(tt.timescale, tt.duration)}
			got, err := MP4Prober{}.Duration(context.Background(), f)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMP4Prober_Fragmented(t *testing.T) {
	f := &memFile{name: "a.mp4", ctype: RequiredMIME, data: fragmentedMP4(1000, 600_000)}
	got, err := MP4Prober{}.Duration(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, got)

	w := New(Deps{}, WithClock(func() time.Time { return fixedNow }))
	assert.EqualError(t, w.SelectFile(context.Background(), f), "Video duration must be less than 5 minutes")
	assert.Nil(t, w.Selection())

	short := &memFile{name: "b.mp4", ctype: RequiredMIME, data: fragmentedMP4(1000, 90_000)}
	require.NoError(t, w.SelectFile(context.Background(), short))
	assert.Equal(t, int64(2000), w.Cost())
}

func TestMP4Prober_NoDuration(t *testing.T) {
	f := &memFile{name: "a.mp4", ctype: RequiredMIME, data: minimalMP4(1000, 0)}
	_, err := MP4Prober{}.Duration(context.Background(), f)
	assert.ErrorIs(t, err, errNoDuration)

	w := New(Deps{}, WithClock(func() time.Time { return fixedNow }))
	assert.EqualError(t, w.SelectFile(context.Background(), f), "Failed to load video metadata")
	assert.Equal(t, int64(0), w.Cost())
}

func TestMP4Prober_Garbage(t *testing.T) {
	f := &memFile{name: "a.mp4", ctype: RequiredMIME, data: []byte("definitely not a movie")}
	_, err := MP4Prober{}.Duration(context.Background(), f)
	assert.Error(t, err)
}

func TestLocalFile(t *testing.T) {
	dir := t.TempDir()

	mp4Path := filepath.Join(dir, "spot.mp4")
	require.NoError(t, os.WriteFile(mp4Path, minimalMP4(1000, 45_000), 0644))
	f, err := OpenLocalFile(mp4Path)
	require.NoError(t, err)
	assert.Equal(t, "spot.mp4", f.Name())
	assert.Equal(t, RequiredMIME, f.ContentType())

	w := New(Deps{}, WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, w.SelectFile(context.Background(), f))
	assert.Equal(t, 45*time.Second, w.Selection().Duration)
	assert.Equal(t, int64(1000), w.Cost())

	txtPath := filepath.Join(dir, "notes.mp4")
	require.NoError(t, os.WriteFile(txtPath, []byte("renamed text file"), 0644))
	txt, err := OpenLocalFile(txtPath)
	require.NoError(t, err)
	assert.EqualError(t, w.SelectFile(context.Background(), txt), "File must be in MP4 format")

	_, err = OpenLocalFile(dir)
	assert.Error(t, err)
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "0:00", FormatDuration(0))
	assert.Equal(t, "1:30", FormatDuration(90*time.Second))
	assert.Equal(t, "4:59", FormatDuration(299*time.Second+999*time.Millisecond))

	assert.Equal(t, "0 Bytes", FormatFileSize(0))
	assert.Equal(t, "512 Bytes", FormatFileSize(512))
	assert.Equal(t, "1.5 KB", FormatFileSize(1536))
	assert.Equal(t, "52.43 MB", FormatFileSize(54_976_593))
	assert.Equal(t, "1 GB", FormatFileSize(MaxFileSize))

	assert.Equal(t, "1,000", FormatTokens(1000))
	assert.Equal(t, "12,345,678", FormatTokens(12345678))
	assert.Equal(t, "999", FormatTokens(999))
	assert.Equal(t, "0", FormatTokens(0))
	assert.Equal(t, "-1,500", FormatTokens(-1500))
	assert.Equal(t, "1 minute × 1,000 $VIEWS", CostBreakdown(30*time.Second))
}

func TestHTTPUploader(t *testing.T) {
	var got struct {
		fields   map[string]string
		fileName string
		fileType string
		content  []byte
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		got.fields = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			got.fields[k] = v[0]
		}
		file, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		got.fileName = hdr.Filename
		got.fileType = hdr.Header.Get("Content-Type")
		got.content, _ = io.ReadAll(file)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":   true,
			"file": map[string]string{"id": "abc", "name": got.fields["name"], "mimeType": "video/mp4"},
		})
	}))
	defer srv.Close()

	up := &HTTPUploader{Endpoint: srv.URL}
	data := minimalMP4(1000, 1000)
	file, err := up.Upload(context.Background(), UploadRequest{
		File:    &memFile{name: "spot.mp4", ctype: RequiredMIME, data: data},
		Name:    "spot.mp4",
		WhenISO: "2026-03-14T13:00:00.000Z",
		Wallet:  "WalletPubkey",
		Tx:      "5igSig",
	})
	require.NoError(t, err)
	assert.Equal(t, "abc", file.ID)

	assert.Equal(t, map[string]string{
		"name":    "spot.mp4",
		"whenISO": "2026-03-14T13:00:00.000Z",
		"wallet":  "WalletPubkey",
		"tx":      "5igSig",
	}, got.fields)
	assert.Equal(t, "spot.mp4", got.fileName)
	assert.Equal(t, RequiredMIME, got.fileType)
	assert.Equal(t, data, got.content)
}

func TestHTTPUploader_ErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Drive env vars not set"}`))
	}))
	defer srv.Close()

	up := &HTTPUploader{Endpoint: srv.URL}
	_, err := up.Upload(context.Background(), UploadRequest{
		File: &memFile{name: "a.mp4", ctype: RequiredMIME, data: []byte("x")},
		Name: "a.mp4",
	})
	assert.EqualError(t, err, "Drive env vars not set")
}
