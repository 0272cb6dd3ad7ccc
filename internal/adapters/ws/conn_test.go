package ws

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"chatline/internal/core"
	"chatline/internal/hub"
	"chatline/internal/store/memstore"
)

type fakeSock struct {
	writes chan []byte
}

func newFakeSock() *fakeSock {
	return &fakeSock{writes: make(chan []byte, 16)}
}

func (f *fakeSock) ReadMessage() (int, []byte, error) { return 0, nil, io.EOF }

func (f *fakeSock) WriteMessage(mt int, data []byte) error {
	if mt == websocket.TextMessage {
		f.writes <- data
	}
	return nil
}

func (f *fakeSock) SetWriteDeadline(time.Time) error { return nil }
func (f *fakeSock) Close() error                     { return nil }

func TestConn_WritePumpDeliversFrames(t *testing.T) {
	req := require.New(t)
	sock := newFakeSock()
	conn := newConn("c1", sock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go conn.writePump(ctx, time.Minute)

	req.NoError(conn.TrySend(core.Frame(`{"type":"ping"}`)))

	select {
	case data := <-sock.writes:
		req.JSONEq(`{"type":"ping"}`, string(data))
	case <-time.After(time.Second):
		t.Fatal("frame never written")
	}
}

func TestConn_TrySendBackpressure(t *testing.T) {
	req := require.New(t)
	conn := newConn("c1", newFakeSock())

	// Nobody drains the send channel; filling it must not block.
	var err error
	for i := 0; i < cap(conn.send)+1; i++ {
		err = conn.TrySend(core.Frame("x"))
	}
	req.ErrorIs(err, ErrBackpressure)
}

func TestConn_CloseIsIdempotent(t *testing.T) {
	conn := newConn("c1", newFakeSock())
	require.NotPanics(t, func() {
		conn.Close()
		conn.Close()
	})
}

func TestDispatch_MalformedInputIsHarmless(t *testing.T) {
	ctl := NewController(hub.New(memstore.New()), 0, 0)
	conn := newConn("c1", newFakeSock())

	require.NotPanics(t, func() {
		ctl.dispatch(context.Background(), conn, []byte("not json"))
		ctl.dispatch(context.Background(), conn, []byte(`{"type":"no-such-event"}`))
		ctl.dispatch(context.Background(), conn, []byte(`{"type":"send-message","data":"not an object"}`))
	})
}
