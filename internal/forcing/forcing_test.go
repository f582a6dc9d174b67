package forcing

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/san-kum/hydrosim/internal/dynamo"
)

const sample = `year,month,day,P(mm/d),E(mm/d),Q_obs(mm/d)
1985,1,1,0.0,1.2,0.31
1985,1,2,12.5,0.8,0.45
1985,1,3,3.1,1.0,
1985,1,4,0,1.4,0.52
`

func TestRead(t *testing.T) {
	d, err := Read(strings.NewReader(sample), DefaultColumns())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if d.Len() != 4 {
		t.Fatalf("expected 4 rows, got %d", d.Len())
	}
	if d.P[1] != 12.5 || d.PET[3] != 1.4 {
		t.Errorf("unexpected values: P=%v PET=%v", d.P, d.PET)
	}
	if !d.HasObservations() || !math.IsNaN(d.QObs[2]) {
		t.Errorf("blank observation should be NaN, got %v", d.QObs)
	}
	if want := time.Date(1985, 1, 2, 0, 0, 0, 0, time.UTC); !d.Dates[1].Equal(want) {
		t.Errorf("date: got %v, want %v", d.Dates[1], want)
	}
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"header only", "year,month,day,P(mm/d),E(mm/d)\n"},
		{"missing column", "P(mm/d),Q_obs(mm/d)\n1,2\n"},
		{"negative rain", "P(mm/d),E(mm/d)\n-1,2\n"},
		{"not a number", "P(mm/d),E(mm/d)\nabc,2\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.input), DefaultColumns())
			if !errors.Is(err, dynamo.ErrInputMismatch) {
				t.Errorf("expected ErrInputMismatch, got %v", err)
			}
		})
	}
}

func TestUndatedTable(t *testing.T) {
	d, err := Read(strings.NewReader("P(mm/d),E(mm/d)\n1,2\n3,4\n"), DefaultColumns())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if d.Dates != nil || d.HasObservations() {
		t.Errorf("expected no dates and no observations")
	}
}

func TestSlice(t *testing.T) {
	d, _ := Read(strings.NewReader(sample), DefaultColumns())

	s, err := d.Slice(1, 3)
	if err != nil {
		t.Fatalf("slice: %v", err)
	}
	if s.Len() != 2 || s.P[0] != 12.5 || len(s.Dates) != 2 || len(s.QObs) != 2 {
		t.Errorf("unexpected slice: %+v", s)
	}

	full, err := d.Slice(0, 0)
	if err != nil || full.Len() != 4 {
		t.Errorf("end 0 should select to the end, got %v %v", full, err)
	}

	if _, err := d.Slice(3, 2); !errors.Is(err, dynamo.ErrInputMismatch) {
		t.Errorf("expected ErrInputMismatch, got %v", err)
	}
}

func TestWriteRoundTrip(t *testing.T) {
	d := Synthetic(40, 7)
	d.QObs = d.P.Scale(0.5)

	path := filepath.Join(t.TempDir(), "forcing.csv")
	var buf bytes.Buffer
	if err := d.Write(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	back, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if back.Len() != d.Len() {
		t.Fatalf("length: got %d, want %d", back.Len(), d.Len())
	}
	for i := range d.P {
		if back.P[i] != d.P[i] || back.PET[i] != d.PET[i] || back.QObs[i] != d.QObs[i] {
			t.Fatalf("row %d differs", i)
		}
		if !back.Dates[i].Equal(d.Dates[i]) {
			t.Fatalf("row %d date differs", i)
		}
	}
}

func TestSyntheticDeterministic(t *testing.T) {
	a, b := Synthetic(100, 42), Synthetic(100, 42)
	for i := range a.P {
		if a.P[i] != b.P[i] {
			t.Fatalf("row %d differs between runs", i)
		}
		if a.P[i] < 0 || a.PET[i] <= 0 {
			t.Errorf("row %d: P=%g PET=%g", i, a.P[i], a.PET[i])
		}
	}
}
