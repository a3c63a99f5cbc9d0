package vault

import (
	"fmt"
	"math/big"
	"strconv"
	"time"

	"custody/keys"
	"custody/types"

	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// appendEvent 给事件分配序号和 ID，并和状态写集一起写进视图。
// 操作回滚时事件也随之消失。
func appendEvent(sv StateView, op *Op, ev *Event, now time.Time) (*Event, error) {
	seq, err := getEventSeq(sv)
	if err != nil {
		return nil, err
	}
	seq++

	out := *ev
	out.Seq = seq
	out.ID = uuid.NewString()
	out.OpID = op.ID
	out.Timestamp = now.UTC()
	if ev.Amount != nil {
		out.Amount = new(big.Int).Set(ev.Amount)
	}

	data, err := encodeEvent(&out)
	if err != nil {
		return nil, err
	}
	sv.Set(keys.KeyEvent(seq), data)
	setEventSeq(sv, seq)
	return &out, nil
}

func encodeEvent(ev *Event) ([]byte, error) {
	fields := map[string]interface{}{
		"seq":       strconv.FormatUint(ev.Seq, 10),
		"id":        ev.ID,
		"op_id":     ev.OpID,
		"kind":      string(ev.Kind),
		"timestamp": ev.Timestamp.Format(time.RFC3339Nano),
	}
	if ev.Caller != "" {
		fields["caller"] = string(ev.Caller)
	}
	if ev.Asset != "" {
		fields["asset"] = string(ev.Asset)
	}
	if ev.Amount != nil {
		fields["amount"] = ev.Amount.String()
	}
	if ev.Previous != "" {
		fields["previous_admin"] = string(ev.Previous)
	}
	if ev.NewAdmin != "" {
		fields["new_admin"] = string(ev.NewAdmin)
	}
	if ev.Pending {
		fields["pending"] = true
	}
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return proto.Marshal(st)
}

func decodeEvent(data []byte) (*Event, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	f := st.GetFields()
	str := func(name string) string { return f[name].GetStringValue() }

	seq, err := strconv.ParseUint(str("seq"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode event seq: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, str("timestamp"))
	if err != nil {
		return nil, fmt.Errorf("decode event timestamp: %w", err)
	}
	ev := &Event{
		Seq:       seq,
		ID:        str("id"),
		OpID:      str("op_id"),
		Kind:      EventKind(str("kind")),
		Caller:    types.Address(str("caller")),
		Asset:     types.AssetID(str("asset")),
		Previous:  types.Address(str("previous_admin")),
		NewAdmin:  types.Address(str("new_admin")),
		Pending:   f["pending"].GetBoolValue(),
		Timestamp: ts,
	}
	if raw, ok := f["amount"]; ok {
		amount, err := ParseBalance(raw.GetStringValue())
		if err != nil {
			return nil, fmt.Errorf("decode event amount: %w", err)
		}
		ev.Amount = amount
	}
	return ev, nil
}

// readEvents 按序号读取 [from, from+limit) 范围内的事件
func readEvents(sv StateView, from uint64, limit int) ([]Event, error) {
	last, err := getEventSeq(sv)
	if err != nil {
		return nil, err
	}
	if from == 0 {
		from = 1
	}
	out := make([]Event, 0)
	for seq := from; seq <= last && (limit <= 0 || len(out) < limit); seq++ {
		data, exists, err := sv.Get(keys.KeyEvent(seq))
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("event %d missing below head %d", seq, last)
		}
		ev, err := decodeEvent(data)
		if err != nil {
			return nil, err
		}
		out = append(out, *ev)
	}
	return out, nil
}
