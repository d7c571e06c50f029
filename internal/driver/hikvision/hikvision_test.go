package hikvision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/velagate/velagate-core/internal/credential"
	"github.com/velagate/velagate-core/internal/device"
	"github.com/velagate/velagate-core/internal/driver"
	"github.com/velagate/velagate-core/internal/infrastructure/config"
	"github.com/velagate/velagate-core/internal/transport"
)

func testClient() *transport.Client {
	return transport.New(config.TransportConfig{
		RequestTimeout: 5,
		MaxRetries:     1,
		RetryBackoff:   1,
	})
}

func testDevice(t *testing.T, serverURL string, devType device.Type) *device.Device {
	t.Helper()

	u, err := url.Parse(serverURL)
	if err != nil {
		t.Fatalf("parsing server URL: %v", err)
	}
	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		t.Fatalf("splitting host/port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parsing port: %v", err)
	}

	return &device.Device{
		ID:           "dev-hik",
		Brand:        device.BrandHikvision,
		Type:         devType,
		Host:         host,
		Port:         port,
		AuthMode:     device.AuthBasic,
		Username:     "admin",
		Password:     "secret",
		RelayChannel: 1,
	}
}

// TestListUsersPagination walks a 950-record table in 400-record pages
// and expects every record exactly once.
func TestListUsersPagination(t *testing.T) {
	const total = 950
	const pageSize = 400

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ISAPI/AccessControl/UserInfo/Search" {
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}

		var req userSearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding search request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		cond := req.UserInfoSearchCond
		if cond.MaxResults != pageSize {
			t.Errorf("maxResults = %d, want %d", cond.MaxResults, pageSize)
		}

		n := cond.MaxResults
		if cond.SearchResultPosition+n > total {
			n = total - cond.SearchResultPosition
		}
		users := make([]userInfo, n)
		for i := range users {
			users[i] = userInfo{EmployeeNo: fmt.Sprintf("EMP%04d", cond.SearchResultPosition+i)}
		}

		status := "MORE"
		if cond.SearchResultPosition+n >= total {
			status = "OK"
		}
		json.NewEncoder(w).Encode(userSearchResponse{ //nolint:errcheck // test server
			UserInfoSearch: userSearchResult{
				SearchID:           cond.SearchID,
				ResponseStatusStrg: status,
				NumOfMatches:       n,
				TotalMatches:       total,
				UserInfo:           users,
			},
		})
	}))
	defer srv.Close()

	d := New(testClient(), pageSize)
	dev := testDevice(t, srv.URL, device.TypeFaceTerminal)

	creds, err := d.ListCredentials(context.Background(), dev, credential.TypeFace)
	if err != nil {
		t.Fatalf("ListCredentials() error = %v", err)
	}
	if len(creds) != total {
		t.Fatalf("ListCredentials() = %d records, want %d", len(creds), total)
	}

	seen := make(map[string]bool, total)
	for _, c := range creds {
		if seen[c.Value] {
			t.Fatalf("duplicate record %s", c.Value)
		}
		seen[c.Value] = true
		if c.Type != credential.TypeFace {
			t.Fatalf("record %s type = %s, want FACE", c.Value, c.Type)
		}
	}
	if !seen["EMP0000"] || !seen[fmt.Sprintf("EMP%04d", total-1)] {
		t.Error("missing first or last record")
	}
}

func TestListUsersNoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(userSearchResponse{ //nolint:errcheck // test server
			UserInfoSearch: userSearchResult{ResponseStatusStrg: "NO MATCH"},
		})
	}))
	defer srv.Close()

	d := New(testClient(), 400)
	dev := testDevice(t, srv.URL, device.TypeFaceTerminal)

	creds, err := d.ListCredentials(context.Background(), dev, credential.TypeTag)
	if err != nil {
		t.Fatalf("ListCredentials() error = %v", err)
	}
	if len(creds) != 0 {
		t.Errorf("ListCredentials() = %d records, want 0", len(creds))
	}
}

func TestListPlates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ISAPI/Traffic/channels/1/searchLPListAudit" {
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(plateSearchResponse{ //nolint:errcheck // test server
			LPListAuditSearch: plateSearchResult{
				ResponseStatusStrg: "OK",
				NumOfMatches:       2,
				TotalMatches:       2,
				LicensePlateInfoList: []plateInfo{
					{LicensePlate: "AB123CD", ListType: "whiteList"},
					{LicensePlate: "XY987ZW", ListType: "whiteList"},
				},
			},
		})
	}))
	defer srv.Close()

	d := New(testClient(), 400)
	dev := testDevice(t, srv.URL, device.TypeLPRCamera)

	creds, err := d.ListCredentials(context.Background(), dev, credential.TypePlate)
	if err != nil {
		t.Fatalf("ListCredentials() error = %v", err)
	}
	if len(creds) != 2 {
		t.Fatalf("ListCredentials() = %d records, want 2", len(creds))
	}
	if creds[0].Value != "AB123CD" || creds[0].Type != credential.TypePlate {
		t.Errorf("unexpected first record %+v", creds[0])
	}
}

func TestUnsupportedTypeCombinations(t *testing.T) {
	d := New(testClient(), 400)

	tests := []struct {
		devType  device.Type
		credType credential.Type
	}{
		{device.TypeLPRCamera, credential.TypeFace},
		{device.TypeLPRCamera, credential.TypeTag},
		{device.TypeFaceTerminal, credential.TypePlate},
		{device.TypeDoorController, credential.TypePlate},
	}

	for _, tt := range tests {
		dev := &device.Device{Type: tt.devType}
		_, err := d.ListCredentials(context.Background(), dev, tt.credType)
		if !errors.Is(err, driver.ErrNotSupported) {
			t.Errorf("ListCredentials(%s, %s) error = %v, want ErrNotSupported",
				tt.devType, tt.credType, err)
		}
		if err := d.AddCredential(context.Background(), dev, driver.DeviceCredential{Type: tt.credType}); !errors.Is(err, driver.ErrNotSupported) {
			t.Errorf("AddCredential(%s, %s) error = %v, want ErrNotSupported",
				tt.devType, tt.credType, err)
		}
	}
}

func TestAddAndRemoveUser(t *testing.T) {
	var added, removed bool

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ISAPI/AccessControl/UserInfo/Record":
			var req userRecordRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decoding record request: %v", err)
			}
			if req.UserInfo.EmployeeNo != "EMP42" {
				t.Errorf("employeeNo = %q, want EMP42", req.UserInfo.EmployeeNo)
			}
			added = true
		case "/ISAPI/AccessControl/UserInfo/Delete":
			var req userDeleteRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decoding delete request: %v", err)
			}
			list := req.UserInfoDelCond.EmployeeNoList
			if len(list) != 1 || list[0].EmployeeNo != "EMP42" {
				t.Errorf("delete list = %+v, want [EMP42]", list)
			}
			removed = true
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := New(testClient(), 400)
	dev := testDevice(t, srv.URL, device.TypeFaceTerminal)
	cred := driver.DeviceCredential{Type: credential.TypeTag, Value: "EMP42", Note: "unit 7"}

	if err := d.AddCredential(context.Background(), dev, cred); err != nil {
		t.Fatalf("AddCredential() error = %v", err)
	}
	if err := d.RemoveCredential(context.Background(), dev, cred); err != nil {
		t.Fatalf("RemoveCredential() error = %v", err)
	}
	if !added || !removed {
		t.Errorf("added = %v, removed = %v, want both true", added, removed)
	}
}

func TestAddRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	d := New(testClient(), 400)
	dev := testDevice(t, srv.URL, device.TypeFaceTerminal)

	err := d.AddCredential(context.Background(), dev, driver.DeviceCredential{
		Type: credential.TypeTag, Value: "EMP42",
	})
	if !errors.Is(err, driver.ErrDeviceRejected) {
		t.Errorf("AddCredential() error = %v, want ErrDeviceRejected", err)
	}
}

func TestTriggerRelay(t *testing.T) {
	var called bool

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ISAPI/AccessControl/RemoteControl/door/2" {
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		var req remoteControlRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding relay request: %v", err)
		}
		if req.RemoteControlDoor.Cmd != "open" {
			t.Errorf("cmd = %q, want open", req.RemoteControlDoor.Cmd)
		}
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := New(testClient(), 400)
	dev := testDevice(t, srv.URL, device.TypeDoorController)

	if err := d.TriggerRelay(context.Background(), dev, 2); err != nil {
		t.Fatalf("TriggerRelay() error = %v", err)
	}
	if !called {
		t.Error("relay endpoint never hit")
	}
}

func TestGetStatusDoorController(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ISAPI/System/status":
			w.WriteHeader(http.StatusOK)
		case "/ISAPI/AccessControl/RemoteControl/door/1/status":
			json.NewEncoder(w).Encode(doorStatusResponse{ //nolint:errcheck // test server
				DoorStatus: doorStatus{Status: "closed"},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	d := New(testClient(), 400)
	dev := testDevice(t, srv.URL, device.TypeDoorController)

	st, err := d.GetStatus(context.Background(), dev)
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if !st.Online {
		t.Error("Online = false, want true")
	}
	if st.DoorState != driver.DoorClosed {
		t.Errorf("DoorState = %s, want CLOSED", st.DoorState)
	}
}
