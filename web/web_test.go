package web

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbocsi/athub/proto"
	"github.com/mbocsi/athub/server"
	"github.com/mbocsi/athub/services"
)

const (
	sensorID = "a1:02:ff:00:3c:9b"
	switchID = "de:ad:be:ef:00:01"
)

type fixture struct {
	coordinator *server.Coordinator
	transport   *InMemoryTransport
	web         *WebClient
	srv         *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	coordinator := server.NewCoordinator(server.NewDeviceRegistry(), server.NewBroker(), nil)
	transport := NewInMemoryTransport()
	coordinator.RegisterTransport(transport)
	require.NoError(t, transport.Start())

	sm := services.NewServiceManager(coordinator, 200*time.Millisecond)
	wc := NewWebClient(sm.GetServices(), transport)
	require.NoError(t, transport.RegisterClient(wc))

	srv := httptest.NewServer(wc.Routes())
	t.Cleanup(srv.Close)
	return &fixture{coordinator: coordinator, transport: transport, web: wc, srv: srv}
}

func frameHex(t *testing.T, id string, bits proto.DeviceBits, fill func(*proto.Message)) string {
	t.Helper()
	msg := proto.NewMessageFor(proto.MustParseDeviceID(id), bits)
	if fill != nil {
		fill(msg)
	}
	frame, err := proto.Encode(msg)
	require.NoError(t, err)
	return hex.EncodeToString(frame)
}

func (f *fixture) do(t *testing.T, method, path, contentType, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *fixture) inject(t *testing.T, frame string) *http.Response {
	t.Helper()
	return f.do(t, http.MethodPost, "/api/frames", "application/json", `{"frame":"`+frame+`"}`)
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestInjectFrame(t *testing.T) {
	f := newFixture(t)

	resp := f.inject(t, frameHex(t, sensorID, proto.UsesChecksum, func(m *proto.Message) {
		require.NoError(t, m.AddCelsius(21.5, 1))
		require.NoError(t, m.AddPercent(40, 2))
	}))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	event := decode[services.MessageEvent](t, resp)
	assert.Equal(t, sensorID, event.Device)
	assert.Equal(t, "checksum", event.Flags)
	require.Len(t, event.Readings, 2)
	assert.Equal(t, "celsius", event.Readings[0].Unit)
	assert.EqualValues(t, 21.5, event.Readings[0].Value)

	resp = f.do(t, http.MethodGet, "/api/devices", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	devices := decode[[]services.DeviceInfo](t, resp)
	require.Len(t, devices, 1)
	assert.Equal(t, sensorID, devices[0].ID)
	assert.True(t, devices[0].Connected)
	assert.Equal(t, "web-ui", devices[0].ClientID)
	assert.Len(t, devices[0].Readings, 2)
}

func TestInjectFrameRejectsBadInput(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body string
	}{
		{"not json", `frame`},
		{"unknown field", `{"frame":"00","extra":1}`},
		{"not hex", `{"frame":"zz"}`},
		{"truncated", `{"frame":"a102ff"}`},
		{"zero id", `{"frame":"` + frameHex(t, "00:00:00:00:00:00", 0, nil) + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(t, http.MethodPost, "/api/frames", "application/json", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			serviceErr := decode[services.ServiceError](t, resp)
			assert.Equal(t, services.ErrCodeInvalidInput, serviceErr.Code)
		})
	}

	devices, err := f.web.services.Device.ListDevices()
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestInjectFrameAcceptsSpacedHex(t *testing.T) {
	f := newFixture(t)
	frame := frameHex(t, sensorID, 0, nil)
	spaced := strings.Join(strings.SplitAfter(frame, "00"), " ")

	resp := f.inject(t, spaced)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestGetDevice(t *testing.T) {
	f := newFixture(t)
	f.inject(t, frameHex(t, sensorID, 0, func(m *proto.Message) {
		require.NoError(t, m.AddLux(300, 4))
	}))

	resp := f.do(t, http.MethodGet, "/api/devices/"+strings.ToUpper(sensorID), "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	device := decode[services.DeviceInfo](t, resp)
	assert.Equal(t, sensorID, device.ID)

	resp = f.do(t, http.MethodGet, "/api/devices/"+sensorID+"/readings", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	readings := decode[[]services.ReadingInfo](t, resp)
	require.Len(t, readings, 1)
	assert.Equal(t, "lx", readings[0].Symbol)

	resp = f.do(t, http.MethodGet, "/api/devices/"+switchID, "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/devices/not-a-mac", "", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRenameDevice(t *testing.T) {
	f := newFixture(t)
	f.inject(t, frameHex(t, sensorID, 0, nil))

	form := url.Values{"name": {"  Greenhouse  "}}.Encode()
	resp := f.do(t, http.MethodPost, "/api/devices/"+sensorID+"/rename", "application/x-www-form-urlencoded", form)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Greenhouse", string(body))
	assert.Equal(t, "clearRenameForm", resp.Header.Get("HX-Trigger"))

	resp = f.do(t, http.MethodPost, "/api/devices/"+sensorID+"/rename", "application/json", `{"name":"Shed"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	device, err := f.web.services.Device.GetDevice(sensorID)
	require.NoError(t, err)
	assert.Equal(t, "Shed", device.Name)

	resp = f.do(t, http.MethodPost, "/api/devices/"+sensorID+"/rename", "application/json", `{"name":"  "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/devices/"+switchID+"/rename", "application/json", `{"name":"x"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestForgetDevice(t *testing.T) {
	f := newFixture(t)
	f.inject(t, frameHex(t, sensorID, 0, nil))

	resp := f.do(t, http.MethodDelete, "/api/devices/"+sensorID, "", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/devices/"+sensorID, "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodDelete, "/api/devices/"+sensorID, "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSetOutputs(t *testing.T) {
	f := newFixture(t)
	f.inject(t, frameHex(t, switchID, proto.UsesChecksum, func(m *proto.Message) {
		require.NoError(t, m.AddSwitchIn(false, 1))
	}))

	body := `{"outputs":[
		{"channel":1,"kind":"switch","value":true},
		{"channel":2,"kind":"float","unit":"percent","value":75.5},
		{"channel":3,"kind":"long","value":-3}
	]}`
	resp := f.do(t, http.MethodPost, "/api/devices/"+switchID+"/outputs", "application/json", body)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/frames", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	frames := decode[[]OutboundFrame](t, resp)
	require.Len(t, frames, 1)
	assert.Equal(t, switchID, frames[0].Device)
	assert.Equal(t, 3, frames[0].Packets)

	raw, err := hex.DecodeString(frames[0].Frame)
	require.NoError(t, err)
	msg, err := proto.Decode(raw)
	require.NoError(t, err)
	assert.True(t, msg.DeviceBits().Has(proto.UsesChecksum))

	on := msg.Packets()[0].Switch()
	assert.True(t, on)
	assert.Equal(t, proto.TypeSwitchOut, msg.Packets()[0].Type)

	level := msg.Packets()[1].Float()
	assert.Equal(t, float32(75.5), level)
	assert.Equal(t, proto.UnitPercent, msg.Packets()[1].Unit)

	n := msg.Packets()[2].Long()
	assert.Equal(t, int32(-3), n)
}

func TestSetOutputsErrors(t *testing.T) {
	f := newFixture(t)
	f.inject(t, frameHex(t, switchID, 0, nil))

	resp := f.do(t, http.MethodPost, "/api/devices/"+switchID+"/outputs", "application/json", `{"outputs":[]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/devices/"+switchID+"/outputs", "application/json",
		`{"outputs":[{"channel":1,"kind":"dimmer","value":1}]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/devices/"+sensorID+"/outputs", "application/json",
		`{"outputs":[{"channel":1,"kind":"switch","value":true}]}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	f.transport.UnregisterClient(f.web.Id)
	resp = f.do(t, http.MethodPost, "/api/devices/"+switchID+"/outputs", "application/json",
		`{"outputs":[{"channel":1,"kind":"switch","value":true}]}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestPollDevice(t *testing.T) {
	f := newFixture(t)
	f.inject(t, frameHex(t, sensorID, proto.IsPassive, nil))

	done := make(chan struct{})
	go func() {
		defer close(done)
		deadline := time.Now().Add(time.Second)
		for len(f.web.Outbox()) == 0 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		reply := proto.NewMessageFor(proto.MustParseDeviceID(sensorID), proto.IsPassive)
		if err := reply.AddCelsius(19, 1); err != nil {
			return
		}
		f.transport.Inject(f.web, reply)
	}()

	resp := f.do(t, http.MethodPost, "/api/devices/"+sensorID+"/poll?timeout=2s", "", "")
	<-done
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decode[services.PollResult](t, resp)
	assert.Equal(t, sensorID, result.Device.ID)
	require.Len(t, result.Readings, 1)
	assert.EqualValues(t, 19, result.Readings[0].Value)

	frames := f.web.Outbox()
	require.Len(t, frames, 1)
	assert.Equal(t, 0, frames[0].Packets)
}

func TestPollDeviceErrors(t *testing.T) {
	f := newFixture(t)
	f.inject(t, frameHex(t, sensorID, proto.IsPassive, nil))
	f.inject(t, frameHex(t, switchID, 0, nil))

	resp := f.do(t, http.MethodPost, "/api/devices/"+sensorID+"/poll?timeout=30ms", "", "")
	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
	serviceErr := decode[services.ServiceError](t, resp)
	assert.Equal(t, services.ErrCodeTimeout, serviceErr.Code)

	resp = f.do(t, http.MethodPost, "/api/devices/"+switchID+"/poll", "", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/devices/"+sensorID+"/poll?timeout=soon", "", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/devices/"+sensorID+"/poll?timeout=-1s", "", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeviceEvents(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"all devices", "/api/events"},
		{"one device", "/api/devices/" + sensorID + "/events"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.srv.URL+tt.path, nil)
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

			lines := bufio.NewReader(resp.Body)
			readEvent := func() (string, string) {
				var event, data string
				for {
					line, err := lines.ReadString('\n')
					require.NoError(t, err)
					line = strings.TrimRight(line, "\n")
					switch {
					case line == "":
						return event, data
					case strings.HasPrefix(line, "event: "):
						event = strings.TrimPrefix(line, "event: ")
					case strings.HasPrefix(line, "data: "):
						data = strings.TrimPrefix(line, "data: ")
					}
				}
			}

			event, _ := readEvent()
			require.Equal(t, "connected", event)

			f.inject(t, frameHex(t, switchID, 0, nil))
			f.inject(t, frameHex(t, sensorID, 0, func(m *proto.Message) {
				require.NoError(t, m.AddCelsius(22, 1))
			}))

			if tt.path == "/api/events" {
				event, data := readEvent()
				require.Equal(t, "message", event)
				var first services.MessageEvent
				require.NoError(t, json.Unmarshal([]byte(data), &first))
				assert.Equal(t, switchID, first.Device)
			}

			event, data := readEvent()
			require.Equal(t, "message", event)
			var msg services.MessageEvent
			require.NoError(t, json.Unmarshal([]byte(data), &msg))
			assert.Equal(t, sensorID, msg.Device)
			require.Len(t, msg.Readings, 1)
			assert.EqualValues(t, 22, msg.Readings[0].Value)
		})
	}
}

func TestDeviceEventsBadTopic(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/api/devices/nope/events", "", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTransportsAPI(t *testing.T) {
	f := newFixture(t)
	f.inject(t, frameHex(t, sensorID, 0, nil))

	resp := f.do(t, http.MethodGet, "/api/transports", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	transports := decode[[]services.TransportInfo](t, resp)
	require.Len(t, transports, 1)
	assert.Equal(t, "memory", transports[0].ID)
	assert.Equal(t, "connected", transports[0].Status)
	assert.Equal(t, 1, transports[0].Connections)

	resp = f.do(t, http.MethodGet, "/api/transports/0", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	transport := decode[services.TransportInfo](t, resp)
	assert.Equal(t, "In-Memory Transport", transport.Name)

	resp = f.do(t, http.MethodGet, "/api/transports/3", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/transports/first", "", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/stats", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := decode[map[string]float64](t, resp)
	assert.EqualValues(t, 1, stats["total_transports"])
	assert.EqualValues(t, 1, stats["online_devices"])
}

func TestPages(t *testing.T) {
	f := newFixture(t)
	f.inject(t, frameHex(t, sensorID, proto.IsPassive, func(m *proto.Message) {
		require.NoError(t, m.AddCelsius(21.25, 1))
	}))
	require.NoError(t, f.web.RenameDevice(sensorID, "Greenhouse"))

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Get(f.srv.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMovedPermanently, resp.StatusCode)
	assert.Equal(t, "/devices", resp.Header.Get("Location"))

	page := func(path string, hx bool) string {
		req, err := http.NewRequest(http.MethodGet, f.srv.URL+path, nil)
		require.NoError(t, err)
		if hx {
			req.Header.Set("HX-Request", "true")
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return string(body)
	}

	devices := page("/devices", false)
	assert.Contains(t, devices, "<!DOCTYPE html>")
	assert.Contains(t, devices, sensorID)
	assert.Contains(t, devices, "Greenhouse")

	detail := page("/devices/"+sensorID, false)
	assert.Contains(t, detail, "<!DOCTYPE html>")
	assert.Contains(t, detail, "21.25")
	assert.Contains(t, detail, "/api/devices/"+sensorID+"/poll")

	partial := page("/devices/"+sensorID, true)
	assert.NotContains(t, partial, "<!DOCTYPE html>")
	assert.Contains(t, partial, "Greenhouse")

	transports := page("/transports", false)
	assert.Contains(t, transports, "In-Memory Transport")

	resp, err = http.Get(f.srv.URL + "/devices/" + switchID)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestOutboxKeepsNewestFrames(t *testing.T) {
	wc := NewWebClient(nil, NewInMemoryTransport())
	id := proto.MustParseDeviceID(sensorID)
	for i := 0; i < outboxSize+6; i++ {
		msg := proto.NewMessageFor(id, 0)
		require.NoError(t, msg.AddLongOut(int32(i), 1, proto.UnitNone))
		require.NoError(t, wc.Send(msg))
	}

	frames := wc.Outbox()
	require.Len(t, frames, outboxSize)

	raw, err := hex.DecodeString(frames[0].Frame)
	require.NoError(t, err)
	msg, err := proto.Decode(raw)
	require.NoError(t, err)
	n := msg.Packets()[0].Long()
	assert.Equal(t, int32(6), n)
}

func TestInMemoryTransport(t *testing.T) {
	t.Run("start without coordinator", func(t *testing.T) {
		transport := NewInMemoryTransport()
		assert.Error(t, transport.Start())
		assert.Error(t, transport.RegisterClient(NewSSEClient("test")))
	})

	t.Run("inject unregistered client", func(t *testing.T) {
		f := newFixture(t)
		stranger := NewSSEClient("test")
		err := f.transport.Inject(stranger, proto.NewMessageFor(proto.MustParseDeviceID(sensorID), 0))
		assert.ErrorIs(t, err, errNotRegistered)
	})

	t.Run("max clients", func(t *testing.T) {
		f := newFixture(t)
		for i := 1; i < 4; i++ {
			require.NoError(t, f.transport.RegisterClient(NewSSEClient("test")))
		}
		assert.Error(t, f.transport.RegisterClient(NewSSEClient("test")))
		assert.Len(t, f.transport.Meta().Clients, 4)
	})

	t.Run("shutdown takes devices offline", func(t *testing.T) {
		f := newFixture(t)
		f.inject(t, frameHex(t, sensorID, 0, nil))
		require.NoError(t, f.transport.Shutdown())

		assert.False(t, f.transport.Meta().Connected)
		connected, err := f.web.services.Device.IsDeviceConnected(sensorID)
		require.NoError(t, err)
		assert.False(t, connected)

		_, err = f.web.InjectFrame(mustDecodeHex(t, frameHex(t, sensorID, 0, nil)))
		var serviceErr services.ServiceError
		require.ErrorAs(t, err, &serviceErr)
		assert.Equal(t, services.ErrCodeUnavailable, serviceErr.Code)
	})
}

func TestSSEClientDropsWhenFull(t *testing.T) {
	c := NewSSEClient("test")
	assert.True(t, strings.HasPrefix(c.Meta().Id, "sse-"))
	msg := proto.NewMessageFor(proto.MustParseDeviceID(sensorID), 0)
	for i := 0; i < sseBuffer; i++ {
		require.NoError(t, c.Send(msg))
	}
	assert.Error(t, c.Send(msg))
}

func TestShutdownEndsEventStreams(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.srv.URL + "/api/events")
	require.NoError(t, err)
	defer resp.Body.Close()

	lines := bufio.NewReader(resp.Body)
	line, err := lines.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "event: connected\n", line)

	require.NoError(t, f.web.Shutdown())
	_, err = io.ReadAll(lines)
	assert.NoError(t, err)
	assert.Equal(t, 0, len(f.coordinator.Broker.Subs(server.AllDevices)))
}

func mustDecodeHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}
