package edl

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/oliwoli/edlgen/internal/timecode"
)

// Writer owns one EDL file for the lifetime of a session. The file is
// created exclusively; an existing file is never touched, the writer walks
// name(1).edl, name(2).edl, ... until a free name is found.
type Writer struct {
	path string
	f    *os.File
	w    *bufio.Writer
}

// Create opens <dir>/<title>.edl (or the first free suffixed variant) and
// writes the CMX3600 header.
func Create(dir, title string, drop timecode.DropFrame) (*Writer, error) {
	var f *os.File
	var path string
	for i := 0; ; i++ {
		name := title + ".edl"
		if i > 0 {
			name = fmt.Sprintf("%s(%d).edl", title, i)
		}
		path = filepath.Join(dir, name)
		var err error
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			break
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("could not create EDL file: %w", err)
		}
	}

	w := &Writer{path: path, f: f, w: bufio.NewWriter(f)}
	fmt.Fprintf(w.w, "TITLE: %s\n", title)
	fmt.Fprintf(w.w, "FCM: %s\n\n", drop)
	if err := w.w.Flush(); err != nil {
		f.Close()
		return nil, fmt.Errorf("could not write EDL header: %w", err)
	}
	return w, nil
}

// Path returns the file actually chosen, immutable for the session.
func (w *Writer) Path() string { return w.path }

// Write appends records to the file, each as one row plus its clip-name
// comment, and flushes so a crash never loses a confirmed edit.
func (w *Writer) Write(records ...Record) error {
	for _, r := range records {
		line, err := r.Line()
		if err != nil {
			return err
		}
		fmt.Fprintln(w.w, line)
		if r.ClipName != "" {
			label := "FROM"
			if r.EditType != Cut {
				label = "TO"
			}
			fmt.Fprintf(w.w, "* %s CLIP NAME: %s\n", label, r.ClipName)
		}
	}
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("could not write EDL records: %w", err)
	}
	return nil
}

// Close flushes and closes the file.
func (w *Writer) Close() error {
	if err := w.w.Flush(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}
