package api_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/maciej-or/hikvision-next/internal/api"
	"github.com/maciej-or/hikvision-next/internal/bridge"
	"github.com/maciej-or/hikvision-next/internal/config"
	"github.com/maciej-or/hikvision-next/internal/device"
)

const (
	testSerial        = "DS-2CD2386G2-IU20210101AAWRG12345678"
	testUniqueIDMD    = "ds_2cd2386g2_iu20210101aawrg12345678_1_motiondetection"
	testUniqueIDIO    = "ds_2cd2386g2_iu20210101aawrg12345678_1_io"
	testSnapshotBytes = "\xff\xd8\xff\xe0 not really a jpeg"
)

// fixtureServer is a canned ISAPI device: request "METHOD /ISAPI/path" keys
// map to response bodies, anything else is a 404.
type fixtureServer struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	fixtures map[string]string
	requests []string
}

func newFixtureServer(t *testing.T, fixtures map[string]string) *fixtureServer {
	t.Helper()
	f := &fixtureServer{t: t, fixtures: fixtures}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixtureServer) handle(w http.ResponseWriter, r *http.Request) {
	io.Copy(io.Discard, r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	resp, ok := f.fixtures[r.Method+" "+r.URL.Path]
	f.mu.Unlock()
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if strings.HasPrefix(strings.TrimSpace(resp), "{") {
		w.Header().Set("Content-Type", "application/json")
	} else {
		w.Header().Set("Content-Type", "application/xml")
	}
	io.WriteString(w, resp)
}

func (f *fixtureServer) deviceConfig() config.Device {
	return config.Device{Host: f.srv.URL, Username: "admin", Password: "secret12"}
}

func (f *fixtureServer) countRequests(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, req := range f.requests {
		if req == key {
			n++
		}
	}
	return n
}

const testDeviceInfoXML = `<?xml version="1.0" encoding="UTF-8"?>
<DeviceInfo version="2.0" xmlns="http://www.hikvision.com/ver20/XMLSchema">
<deviceName>yard</deviceName>
<model>DS-2CD2386G2-IU</model>
<serialNumber>DS-2CD2386G2-IU20210101AAWRG12345678</serialNumber>
<macAddress>24:28:fd:09:12:34</macAddress>
<firmwareVersion>V5.7.3</firmwareVersion>
<deviceType>IPCamera</deviceType>
<manufacturer>HIKVISION</manufacturer>
</DeviceInfo>`

const testCapabilitiesXML = `<?xml version="1.0" encoding="UTF-8"?>
<DeviceCap version="2.0" xmlns="http://www.hikvision.com/ver20/XMLSchema">
<SysCap>
<isSupportHolidy>true</isSupportHolidy>
<VideoCap>
<videoInputPortNums>1</videoInputPortNums>
</VideoCap>
<IOCap>
<IOInputPortNums>1</IOInputPortNums>
<IOOutputPortNums>1</IOOutputPortNums>
</IOCap>
</SysCap>
<isSupportGetmutexFuncErrMsg>true</isSupportGetmutexFuncErrMsg>
</DeviceCap>`

const testTriggersXML = `<?xml version="1.0" encoding="UTF-8"?>
<EventNotification version="2.0" xmlns="http://www.hikvision.com/ver20/XMLSchema">
<EventTriggerList>
<EventTrigger>
<id>VMD-1</id>
<eventType>VMD</eventType>
<videoInputChannelID>1</videoInputChannelID>
<EventTriggerNotificationList>
<EventTriggerNotification>
<id>center</id>
<notificationMethod>center</notificationMethod>
</EventTriggerNotification>
</EventTriggerNotificationList>
</EventTrigger>
<EventTrigger>
<id>IO-1</id>
<eventType>IO</eventType>
<inputIOPortID>1</inputIOPortID>
<EventTriggerNotificationList>
<EventTriggerNotification>
<id>center</id>
<notificationMethod>center</notificationMethod>
</EventTriggerNotification>
</EventTriggerNotificationList>
</EventTrigger>
</EventTriggerList>
</EventNotification>`

// Motion starts disabled so an enable request has to go through the
// mutual-exclusion probe.
const testMotionDetectionXML = `<?xml version="1.0" encoding="UTF-8"?>
<MotionDetection version="2.0" xmlns="http://www.hikvision.com/ver20/XMLSchema">
<enabled>false</enabled>
<sensitivityLevel>60</sensitivityLevel>
</MotionDetection>`

const testIOInputXML = `<?xml version="1.0" encoding="UTF-8"?>
<IOInputPort version="2.0" xmlns="http://www.hikvision.com/ver20/XMLSchema">
<id>1</id>
<enabled>false</enabled>
<triggering>high</triggering>
</IOInputPort>`

const testStreamListXML = `<?xml version="1.0" encoding="UTF-8"?>
<StreamingChannelList version="2.0" xmlns="http://www.hikvision.com/ver20/XMLSchema">
<StreamingChannel>
<id>101</id>
</StreamingChannel>
</StreamingChannelList>`

const testStreamXML = `<?xml version="1.0" encoding="UTF-8"?>
<StreamingChannel version="2.0" xmlns="http://www.hikvision.com/ver20/XMLSchema">
<id>101</id>
<channelName>yard</channelName>
<enabled>true</enabled>
<Video>
<videoCodecType>H.265</videoCodecType>
<videoResolutionWidth>3840</videoResolutionWidth>
<videoResolutionHeight>2160</videoResolutionHeight>
</Video>
</StreamingChannel>`

const testMutexConflictJSON = `{
"MutexFunctionList": [
{"mutexFunction": "FieldDetection", "channelID": [1]}
]
}`

// deviceFixtures is a single-channel IP camera with one stream, a motion and
// an IO event, and canned answers for toggling both.
func deviceFixtures() map[string]string {
	return map[string]string{
		"GET /ISAPI/System/deviceInfo":                              testDeviceInfoXML,
		"GET /ISAPI/System/capabilities":                            testCapabilitiesXML,
		"GET /ISAPI/Event/triggers":                                 testTriggersXML,
		"GET /ISAPI/Streaming/channels":                             testStreamListXML,
		"GET /ISAPI/Streaming/channels/101":                         testStreamXML,
		"GET /ISAPI/Streaming/channels/101/picture":                 testSnapshotBytes,
		"GET /ISAPI/System/Video/inputs/channels/1/motionDetection": testMotionDetectionXML,
		"GET /ISAPI/System/IO/inputs/1":                             testIOInputXML,
		"PUT /ISAPI/System/IO/inputs/1":                             "",
		"POST /ISAPI/System/mutexFunction":                          testMutexConflictJSON,
	}
}

// apiFixture wires a fixture device, a connected manager and the HTTP surface
// around an in-process notifier. NATS stays unconfigured.
type apiFixture struct {
	f        *fixtureServer
	mgr      *device.Manager
	notifier *bridge.Notifier
	ts       *httptest.Server
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	f := newFixtureServer(t, deviceFixtures())
	mgr := device.NewManager("", zerolog.Nop())
	mgr.Apply(context.Background(), []config.Device{f.deviceConfig()})

	notifier := bridge.NewNotifier()
	srv := api.NewServer(mgr, notifier, nil, bridge.NewDedup(64, 15*time.Second), 15*time.Second, zerolog.Nop())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &apiFixture{f: f, mgr: mgr, notifier: notifier, ts: ts}
}
