package hikvision

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/velagate/velagate-core/internal/credential"
	"github.com/velagate/velagate-core/internal/device"
	"github.com/velagate/velagate-core/internal/driver"
	"github.com/velagate/velagate-core/internal/transport"
)

const (
	contentTypeJSON = "application/json"

	// statusMore is the responseStatusStrg signalling further pages.
	statusMore    = "MORE"
	statusNoMatch = "NO MATCH"

	userSearchPath    = "/ISAPI/AccessControl/UserInfo/Search?format=json"
	userRecordPath    = "/ISAPI/AccessControl/UserInfo/Record?format=json"
	userDeletePath    = "/ISAPI/AccessControl/UserInfo/Delete?format=json"
	userDeleteAllPath = "/ISAPI/AccessControl/UserInfoDetail/Delete?format=json"
	systemStatusPath  = "/ISAPI/System/status?format=json"
)

// Driver implements the JSON ISAPI management protocol.
//
// LPR cameras carry a plate white-list under /ISAPI/Traffic; face
// terminals and door controllers carry person records under
// /ISAPI/AccessControl. Both searches page with a searchResultPosition
// cursor bounded by totalMatches.
type Driver struct {
	http     *transport.Client
	pageSize int
}

// New creates a hikvision driver paging device searches at pageSize.
func New(client *transport.Client, pageSize int) *Driver {
	if pageSize < 1 {
		pageSize = 100
	}
	return &Driver{http: client, pageSize: pageSize}
}

// supports reports whether a credential type lives on this device.
func supports(dev *device.Device, t credential.Type) bool {
	if dev.Type == device.TypeLPRCamera {
		return t == credential.TypePlate
	}
	return t != credential.TypePlate
}

// ListCredentials pulls the full on-device set for a type, following
// the cursor until totalMatches records have been seen.
func (d *Driver) ListCredentials(ctx context.Context, dev *device.Device, t credential.Type) ([]driver.DeviceCredential, error) {
	if !supports(dev, t) {
		return nil, fmt.Errorf("%w: %s on %s", driver.ErrNotSupported, t, dev.Type)
	}
	if dev.Type == device.TypeLPRCamera {
		return d.listPlates(ctx, dev)
	}
	return d.listUsers(ctx, dev, t)
}

func (d *Driver) listUsers(ctx context.Context, dev *device.Device, t credential.Type) ([]driver.DeviceCredential, error) {
	searchID := uuid.New().String()
	var out []driver.DeviceCredential

	for position := 0; ; {
		body, err := json.Marshal(userSearchRequest{
			UserInfoSearchCond: userSearchCond{
				SearchID:             searchID,
				SearchResultPosition: position,
				MaxResults:           d.pageSize,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("encoding user search: %w", err)
		}

		resp, err := d.http.Post(ctx, dev, userSearchPath, body, contentTypeJSON)
		if err != nil {
			return nil, err
		}
		if err := checkStatus(resp); err != nil {
			return nil, err
		}

		var page userSearchResponse
		if err := json.Unmarshal(resp.Body, &page); err != nil {
			return nil, fmt.Errorf("%w: decoding user search page: %v", transport.ErrProtocol, err)
		}
		result := page.UserInfoSearch

		if result.ResponseStatusStrg == statusNoMatch {
			return out, nil
		}
		for _, u := range result.UserInfo {
			out = append(out, driver.DeviceCredential{Type: t, Value: u.EmployeeNo, Note: u.Name})
		}

		position += result.NumOfMatches
		if result.ResponseStatusStrg != statusMore || position >= result.TotalMatches {
			return out, nil
		}
		if result.NumOfMatches == 0 {
			return nil, fmt.Errorf("%w: search page made no progress at position %d", transport.ErrProtocol, position)
		}
	}
}

func (d *Driver) listPlates(ctx context.Context, dev *device.Device) ([]driver.DeviceCredential, error) {
	searchID := uuid.New().String()
	var out []driver.DeviceCredential

	for position := 0; ; {
		body, err := json.Marshal(plateSearchRequest{
			LPSearchCond: plateSearchCond{
				SearchID:             searchID,
				SearchResultPosition: position,
				MaxResults:           d.pageSize,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("encoding plate search: %w", err)
		}

		resp, err := d.http.Post(ctx, dev, d.platePath("searchLPListAudit"), body, contentTypeJSON)
		if err != nil {
			return nil, err
		}
		if err := checkStatus(resp); err != nil {
			return nil, err
		}

		var page plateSearchResponse
		if err := json.Unmarshal(resp.Body, &page); err != nil {
			return nil, fmt.Errorf("%w: decoding plate search page: %v", transport.ErrProtocol, err)
		}
		result := page.LPListAuditSearch

		if result.ResponseStatusStrg == statusNoMatch {
			return out, nil
		}
		for _, p := range result.LicensePlateInfoList {
			out = append(out, driver.DeviceCredential{Type: credential.TypePlate, Value: p.LicensePlate})
		}

		position += result.NumOfMatches
		if result.ResponseStatusStrg != statusMore || position >= result.TotalMatches {
			return out, nil
		}
		if result.NumOfMatches == 0 {
			return nil, fmt.Errorf("%w: search page made no progress at position %d", transport.ErrProtocol, position)
		}
	}
}

// AddCredential writes one credential onto the device.
func (d *Driver) AddCredential(ctx context.Context, dev *device.Device, c driver.DeviceCredential) error {
	if !supports(dev, c.Type) {
		return fmt.Errorf("%w: %s on %s", driver.ErrNotSupported, c.Type, dev.Type)
	}

	var (
		path string
		body []byte
		err  error
	)
	if dev.Type == device.TypeLPRCamera {
		path = d.platePath("licensePlateAuditData/record")
		body, err = json.Marshal(plateRecordRequest{
			LicensePlateInfoList: []plateInfo{{LicensePlate: c.Value, ListType: "whiteList"}},
		})
	} else {
		path = userRecordPath
		body, err = json.Marshal(userRecordRequest{
			UserInfo: userInfo{EmployeeNo: c.Value, Name: c.Note, UserType: "normal"},
		})
	}
	if err != nil {
		return fmt.Errorf("encoding add request: %w", err)
	}

	resp, err := d.http.Post(ctx, dev, path, body, contentTypeJSON)
	if err != nil {
		return err
	}
	return checkStatus(resp)
}

// RemoveCredential deletes one credential from the device.
func (d *Driver) RemoveCredential(ctx context.Context, dev *device.Device, c driver.DeviceCredential) error {
	if !supports(dev, c.Type) {
		return fmt.Errorf("%w: %s on %s", driver.ErrNotSupported, c.Type, dev.Type)
	}

	var (
		path string
		body []byte
		err  error
	)
	if dev.Type == device.TypeLPRCamera {
		path = d.platePath("licensePlateAuditData")
		body, err = json.Marshal(plateDeleteRequest{
			LPDeleteCond: plateDeleteCond{LicensePlateList: []plateInfo{{LicensePlate: c.Value}}},
		})
	} else {
		path = userDeletePath
		body, err = json.Marshal(userDeleteRequest{
			UserInfoDelCond: userDeleteCond{EmployeeNoList: []employeeNo{{EmployeeNo: c.Value}}},
		})
	}
	if err != nil {
		return fmt.Errorf("encoding delete request: %w", err)
	}

	resp, err := d.http.Put(ctx, dev, path, body, contentTypeJSON)
	if err != nil {
		return err
	}
	return checkStatus(resp)
}

// RemoveAll clears the device's credential table for a type.
func (d *Driver) RemoveAll(ctx context.Context, dev *device.Device, t credential.Type) error {
	if !supports(dev, t) {
		return fmt.Errorf("%w: %s on %s", driver.ErrNotSupported, t, dev.Type)
	}

	if dev.Type == device.TypeLPRCamera {
		// No bulk wipe on the traffic list; fall back to listed removes.
		plates, err := d.listPlates(ctx, dev)
		if err != nil {
			return err
		}
		for _, p := range plates {
			if err := d.RemoveCredential(ctx, dev, p); err != nil {
				return err
			}
		}
		return nil
	}

	body, err := json.Marshal(userDeleteAllRequest{
		UserInfoDetail: userDeleteAllDetail{Mode: "all"},
	})
	if err != nil {
		return fmt.Errorf("encoding delete-all request: %w", err)
	}
	resp, err := d.http.Put(ctx, dev, userDeleteAllPath, body, contentTypeJSON)
	if err != nil {
		return err
	}
	return checkStatus(resp)
}

// TriggerRelay pulses the door or barrier relay on a channel.
func (d *Driver) TriggerRelay(ctx context.Context, dev *device.Device, channel int) error {
	body, err := json.Marshal(remoteControlRequest{
		RemoteControlDoor: remoteControlDoor{Cmd: "open"},
	})
	if err != nil {
		return fmt.Errorf("encoding relay request: %w", err)
	}

	path := fmt.Sprintf("/ISAPI/AccessControl/RemoteControl/door/%d?format=json", channel)
	resp, err := d.http.Put(ctx, dev, path, body, contentTypeJSON)
	if err != nil {
		return err
	}
	return checkStatus(resp)
}

// GetStatus probes the device and, for door controllers, the door
// position.
func (d *Driver) GetStatus(ctx context.Context, dev *device.Device) (*driver.Status, error) {
	resp, err := d.http.Get(ctx, dev, systemStatusPath)
	if err != nil {
		return nil, err
	}
	if resp.Status != http.StatusOK {
		return &driver.Status{Online: false, DoorState: driver.DoorUnknown}, nil
	}

	status := &driver.Status{Online: true, DoorState: driver.DoorUnknown}
	if dev.Type != device.TypeDoorController {
		return status, nil
	}

	path := fmt.Sprintf("/ISAPI/AccessControl/RemoteControl/door/%d/status?format=json", dev.RelayChannel)
	doorResp, err := d.http.Get(ctx, dev, path)
	if err != nil || doorResp.Status != http.StatusOK {
		// Door position is best effort; the device itself answered.
		return status, nil
	}

	var ds doorStatusResponse
	if err := json.Unmarshal(doorResp.Body, &ds); err != nil {
		return status, nil
	}
	switch strings.ToLower(ds.DoorStatus.Status) {
	case "open":
		status.DoorState = driver.DoorOpen
	case "closed", "close":
		status.DoorState = driver.DoorClosed
	}
	return status, nil
}

// platePath builds a traffic-channel path for the device's LPR channel.
func (d *Driver) platePath(suffix string) string {
	return fmt.Sprintf("/ISAPI/Traffic/channels/1/%s?format=json", suffix)
}

// checkStatus maps a non-2xx device answer onto the driver error
// taxonomy.
func checkStatus(resp *transport.Response) error {
	if resp.Status >= 200 && resp.Status < 300 {
		return nil
	}
	return fmt.Errorf("%w: http %d", driver.ErrDeviceRejected, resp.Status)
}
