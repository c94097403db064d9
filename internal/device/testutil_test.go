package device

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/maciej-or/hikvision-next/internal/config"
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

const testMotionDetectionXML = `<?xml version="1.0" encoding="UTF-8"?>
<MotionDetection version="2.0" xmlns="http://www.hikvision.com/ver20/XMLSchema">
<enabled>true</enabled>
<sensitivityLevel>60</sensitivityLevel>
</MotionDetection>`

const testIOInputXML = `<?xml version="1.0" encoding="UTF-8"?>
<IOInputPort version="2.0" xmlns="http://www.hikvision.com/ver20/XMLSchema">
<id>1</id>
<enabled>false</enabled>
<triggering>high</triggering>
</IOInputPort>`

const testHolidayListXML = `<?xml version="1.0" encoding="UTF-8"?>
<HolidayList version="2.0" xmlns="http://www.hikvision.com/ver20/XMLSchema">
<holiday>
<id>1</id>
<holidayName>Holiday1</holidayName>
<enabled>true</enabled>
<holidayMode>week</holidayMode>
</holiday>
</HolidayList>`

const testHTTPHostsXML = `<?xml version="1.0" encoding="UTF-8"?>
<HttpHostNotificationList version="2.0" xmlns="http://www.hikvision.com/ver20/XMLSchema">
<HttpHostNotification>
<id>1</id>
<url>/api/notifications</url>
<protocolType>HTTP</protocolType>
<parameterFormatType>XML</parameterFormatType>
<addressingFormatType>ipaddress</addressingFormatType>
<ipAddress>192.168.1.2</ipAddress>
<portNo>8214</portNo>
<httpAuthenticationMethod>none</httpAuthenticationMethod>
</HttpHostNotification>
</HttpHostNotificationList>`

// cameraFixtures is a single-channel IP camera with a motion and an IO
// event. Endpoints left out answer 404, which discovery tolerates.
func cameraFixtures() map[string]string {
	return map[string]string{
		"GET /ISAPI/System/deviceInfo":                              testDeviceInfoXML,
		"GET /ISAPI/System/capabilities":                            testCapabilitiesXML,
		"GET /ISAPI/Event/notification/httpHosts":                   testHTTPHostsXML,
		"GET /ISAPI/Event/triggers":                                 testTriggersXML,
		"GET /ISAPI/System/Holidays":                                testHolidayListXML,
		"GET /ISAPI/System/Video/inputs/channels/1/motionDetection": testMotionDetectionXML,
		"GET /ISAPI/System/IO/inputs/1":                             testIOInputXML,
	}
}
