package operator

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"loom/internal/apperrors"
	"loom/internal/artifact"
	"loom/internal/audio"
)

// Diarizer is stage 5: who-spoke-when over a split, using exactly one of
// the three supported backends. The spec never fuses disagreeing backends
// — the project picks one backend and stays with it (§9 open question,
// resolved: carried forward unchanged).
type Diarizer struct {
	Store  *artifact.Store
	Binary string
}

type DiarizeInputs struct {
	SplitID     string
	AudioPath   string
	Backend     string
	MaxSpeakers int
}

type DiarizeOutputs struct {
	Track      audio.DiarizationTrack
	Embeddings map[string][]float64
}

func (d *Diarizer) Name() string { return "diarize" }

func (d *Diarizer) Run(ctx context.Context, rawInputs, _ any, sink ProgressSink) (any, error) {
	in := rawInputs.(DiarizeInputs)
	path := d.Store.DiarizationPath(in.SplitID, in.Backend)
	embeddingsPath := d.Store.SpeakerEmbeddingsPath(in.SplitID, in.Backend)

	done, _ := AlreadyDone(artifact.NewerThan, []string{path, embeddingsPath}, []string{in.AudioPath})
	if !done {
		sub := Subprocess{Binary: d.Binary, Stage: d.Name()}
		args := []string{
			"--input", in.AudioPath,
			"--output", path,
			"--embeddings-output", embeddingsPath,
			"--backend", in.Backend,
			"--progress-json",
		}
		if in.MaxSpeakers > 0 {
			args = append(args, "--max-speakers", fmt.Sprintf("%d", in.MaxSpeakers))
		}
		if err := sub.Run(ctx, args, sink); err != nil {
			return nil, fmt.Errorf("diarize %s: %w", in.SplitID, err)
		}
	}

	intervals, err := readDiarizationCSV(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConsistency, d.Name(), in.SplitID, "read diarization artifact", err)
	}
	track, err := audio.NewDiarizationTrack(in.Backend, intervals)
	if err != nil {
		return nil, err
	}

	var embeddings map[string][]float64
	if err := artifact.ReadJSON(embeddingsPath, &embeddings); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConsistency, d.Name(), in.SplitID, "read speaker embeddings artifact", err)
	}
	return DiarizeOutputs{Track: track, Embeddings: embeddings}, nil
}

// readDiarizationCSV parses the `speaker,start,end` (seconds, float) format
// §6 specifies for diarization artifacts.
func readDiarizationCSV(path string) ([]audio.DiarizationInterval, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var intervals []audio.DiarizationInterval
	scanner := bufio.NewScanner(f)
	first := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if first {
			first = false
			if strings.HasPrefix(strings.ToLower(line), "speaker,") {
				continue
			}
		}
		fields := strings.Split(line, ",")
		if len(fields) != 3 {
			return nil, fmt.Errorf("malformed diarization row: %q", line)
		}
		start, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("parse start in row %q: %w", line, err)
		}
		end, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("parse end in row %q: %w", line, err)
		}
		intervals = append(intervals, audio.DiarizationInterval{
			Label:  strings.TrimSpace(fields[0]),
			StartS: start,
			EndS:   end,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return intervals, nil
}
