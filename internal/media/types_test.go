package media

import "testing"

func TestClassifyUpload(t *testing.T) {
	t.Parallel()

	cases := []struct {
		mime string
		name string
		want Class
	}{
		{mime: "image/png", name: "a.bin", want: ClassImage},
		{mime: "video/mp4", name: "a.jpg", want: ClassVideo},
		{mime: "audio/mpeg; charset=binary", name: "track", want: ClassAudio},
		{mime: "", name: "holiday.MOV", want: ClassVideo},
		{mime: "application/octet-stream", name: "photo.jpeg", want: ClassImage},
		{mime: "", name: "song.flac", want: ClassAudio},
		{mime: "application/pdf", name: "report.pdf", want: ClassDocument},
		{mime: "", name: "", want: ClassDocument},
	}
	for _, tc := range cases {
		if got := ClassifyUpload(tc.mime, tc.name); got != tc.want {
			t.Fatalf("ClassifyUpload(%q, %q) = %s, want %s", tc.mime, tc.name, got, tc.want)
		}
	}
}

func TestParseClass(t *testing.T) {
	t.Parallel()

	if got := ParseClass(" Video_Note "); got != ClassVideoNote {
		t.Fatalf("unexpected class: %s", got)
	}
	if got := ParseClass("hologram"); got != ClassUnknown {
		t.Fatalf("unexpected class: %s", got)
	}
}

func TestInferExtension(t *testing.T) {
	t.Parallel()

	if got := InferExtension(ClassDocument, "application/pdf"); got != "pdf" {
		t.Fatalf("unexpected ext: %s", got)
	}
	if got := InferExtension(ClassVoice, ""); got != "ogg" {
		t.Fatalf("unexpected ext: %s", got)
	}
	if got := InferExtension(ClassImage, "image/unknown"); got != "jpg" {
		t.Fatalf("unexpected ext: %s", got)
	}
	if got := InferExtension(ClassUnknown, ""); got != "bin" {
		t.Fatalf("unexpected ext: %s", got)
	}
}

func TestResolveMime(t *testing.T) {
	t.Parallel()

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")
	cases := []struct {
		declared string
		data     []byte
		want     string
	}{
		{declared: "Application/PDF; q=1", data: png, want: "application/pdf"},
		{declared: "", data: png, want: "image/png"},
		{declared: "application/octet-stream", data: []byte("%PDF-1.7\n"), want: "application/pdf"},
		{declared: "", data: nil, want: "application/octet-stream"},
	}
	for _, tc := range cases {
		if got := ResolveMime(tc.declared, tc.data); got != tc.want {
			t.Fatalf("ResolveMime(%q) = %q, want %q", tc.declared, got, tc.want)
		}
	}
}
