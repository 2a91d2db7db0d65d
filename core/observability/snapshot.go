package observability

import (
	"bytes"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"google.golang.org/protobuf/encoding/protojson"
)

var snapshotOptions = protojson.MarshalOptions{UseProtoNames: true}

// Snapshot gathers every metric family and renders them as a JSON array of
// protobuf MetricFamily messages.
func Snapshot(gatherer prometheus.Gatherer) ([]byte, error) {
	families, err := gatherer.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, mf := range families {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := appendFamily(&buf, mf); err != nil {
			return nil, err
		}
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func appendFamily(buf *bytes.Buffer, mf *dto.MetricFamily) error {
	b, err := snapshotOptions.Marshal(mf)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", mf.GetName(), err)
	}
	buf.Write(b)
	return nil
}
