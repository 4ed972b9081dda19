package latency

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

// LoadSamplesCSV reads recorded (req_ts, exch_ts, resp_ts) rows from a CSV
// file and returns them as Samples for NewInterpolated. The file may carry
// an optional header row ("req_ts,exch_ts,resp_ts"); it is detected and
// skipped if its first field does not parse as an integer.
func LoadSamplesCSV(path string) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("latency: open sample file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 3

	var samples []Sample
	first := true
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("latency: read sample file %s: %w", path, err)
		}
		if first {
			first = false
			if _, err := strconv.ParseInt(row[0], 10, 64); err != nil {
				continue // header row
			}
		}
		reqTs, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("latency: sample file %s: req_ts: %w", path, err)
		}
		exchTs, err := strconv.ParseInt(row[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("latency: sample file %s: exch_ts: %w", path, err)
		}
		respTs, err := strconv.ParseInt(row[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("latency: sample file %s: resp_ts: %w", path, err)
		}
		samples = append(samples, Sample{ReqTs: reqTs, ExchTs: exchTs, RespTs: respTs})
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("latency: sample file %s has no data rows", path)
	}
	return samples, nil
}
