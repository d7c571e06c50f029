package dahua

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/velagate/velagate-core/internal/credential"
	"github.com/velagate/velagate-core/internal/device"
	"github.com/velagate/velagate-core/internal/driver"
	"github.com/velagate/velagate-core/internal/transport"
)

const (
	contentTypeXML = "application/xml"

	tableCards  = "AccessControlCard"
	tablePlates = "TrafficWhiteList"

	finderPath  = "/cgi-bin/recordFinder.cgi"
	updaterPath = "/cgi-bin/recordUpdater.cgi"
	controlPath = "/cgi-bin/accessControl.cgi"
)

// Driver implements the XML record finder management protocol.
//
// Card and plate tables are read through an explicit cursor: startFind
// allocates a finder token and reports the total count, doFind drains
// fixed-size pages, stopFind releases the cursor. Record removal is by
// record number, so removes find the target record first.
type Driver struct {
	http     *transport.Client
	pageSize int
}

// New creates a dahua driver paging finder reads at pageSize.
func New(client *transport.Client, pageSize int) *Driver {
	if pageSize < 1 {
		pageSize = 100
	}
	return &Driver{http: client, pageSize: pageSize}
}

func tableFor(dev *device.Device, t credential.Type) (string, error) {
	if dev.Type == device.TypeLPRCamera {
		if t != credential.TypePlate {
			return "", fmt.Errorf("%w: %s on %s", driver.ErrNotSupported, t, dev.Type)
		}
		return tablePlates, nil
	}
	if t == credential.TypePlate {
		return "", fmt.Errorf("%w: %s on %s", driver.ErrNotSupported, t, dev.Type)
	}
	return tableCards, nil
}

func (r record) value(table string) string {
	if table == tablePlates {
		return r.Plate
	}
	return r.CardNo
}

func newRecord(table, value, note string) record {
	if table == tablePlates {
		return record{Plate: value, Note: note}
	}
	return record{CardNo: value, Note: note}
}

// ListCredentials drains the device table through a finder cursor.
func (d *Driver) ListCredentials(ctx context.Context, dev *device.Device, t credential.Type) ([]driver.DeviceCredential, error) {
	table, err := tableFor(dev, t)
	if err != nil {
		return nil, err
	}

	records, err := d.findAll(ctx, dev, table, "")
	if err != nil {
		return nil, err
	}

	out := make([]driver.DeviceCredential, 0, len(records))
	for _, r := range records {
		out = append(out, driver.DeviceCredential{Type: t, Value: r.value(table), Note: r.Note})
	}
	return out, nil
}

// findAll runs one full cursor walk. condition narrows the search when
// non-empty ("field=value").
func (d *Driver) findAll(ctx context.Context, dev *device.Device, table, condition string) ([]record, error) {
	token, total, err := d.startFind(ctx, dev, table, condition)
	if err != nil {
		return nil, err
	}
	defer d.stopFind(ctx, dev, token)

	var out []record
	for len(out) < total {
		page, err := d.doFind(ctx, dev, token, len(out))
		if err != nil {
			return nil, err
		}
		if page.Found == 0 || len(page.Records) == 0 {
			return nil, fmt.Errorf("%w: finder made no progress at offset %d of %d", transport.ErrProtocol, len(out), total)
		}
		out = append(out, page.Records...)
	}
	return out, nil
}

func (d *Driver) startFind(ctx context.Context, dev *device.Device, table, condition string) (string, int, error) {
	q := url.Values{}
	q.Set("action", "startFind")
	q.Set("name", table)
	if condition != "" {
		q.Set("condition", condition)
	}

	resp, err := d.http.Get(ctx, dev, finderPath+"?"+q.Encode())
	if err != nil {
		return "", 0, err
	}
	if err := checkStatus(resp); err != nil {
		return "", 0, err
	}

	var fr finderResponse
	if err := xml.Unmarshal(resp.Body, &fr); err != nil {
		return "", 0, fmt.Errorf("%w: decoding finder response: %v", transport.ErrProtocol, err)
	}
	if fr.Token == "" {
		return "", 0, fmt.Errorf("%w: finder returned no token", transport.ErrProtocol)
	}
	return fr.Token, fr.TotalCount, nil
}

func (d *Driver) doFind(ctx context.Context, dev *device.Device, token string, offset int) (*recordPage, error) {
	q := url.Values{}
	q.Set("action", "doFind")
	q.Set("token", token)
	q.Set("offset", fmt.Sprintf("%d", offset))
	q.Set("count", fmt.Sprintf("%d", d.pageSize))

	resp, err := d.http.Get(ctx, dev, finderPath+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var page recordPage
	if err := xml.Unmarshal(resp.Body, &page); err != nil {
		return nil, fmt.Errorf("%w: decoding finder page: %v", transport.ErrProtocol, err)
	}
	return &page, nil
}

// stopFind releases a finder token. Best effort: the device expires
// stale tokens on its own.
func (d *Driver) stopFind(ctx context.Context, dev *device.Device, token string) {
	q := url.Values{}
	q.Set("action", "stopFind")
	q.Set("token", token)
	d.http.Get(ctx, dev, finderPath+"?"+q.Encode()) //nolint:errcheck // cursor cleanup
}

// AddCredential inserts one record into the device table.
func (d *Driver) AddCredential(ctx context.Context, dev *device.Device, c driver.DeviceCredential) error {
	table, err := tableFor(dev, c.Type)
	if err != nil {
		return err
	}

	body, err := xml.Marshal(newRecord(table, c.Value, c.Note))
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}

	q := url.Values{}
	q.Set("action", "insert")
	q.Set("name", table)

	resp, err := d.http.Post(ctx, dev, updaterPath+"?"+q.Encode(), body, contentTypeXML)
	if err != nil {
		return err
	}
	return checkStatus(resp)
}

// RemoveCredential deletes the record holding a value. The device
// removes by record number, so the record is located first; a value
// absent from the table is treated as already removed.
func (d *Driver) RemoveCredential(ctx context.Context, dev *device.Device, c driver.DeviceCredential) error {
	table, err := tableFor(dev, c.Type)
	if err != nil {
		return err
	}

	field := "CardNo"
	if table == tablePlates {
		field = "PlateNumber"
	}
	records, err := d.findAll(ctx, dev, table, fmt.Sprintf("%s=%s", field, c.Value))
	if err != nil {
		return err
	}

	// Filter again on our side; older firmwares ignore the finder
	// condition and return the whole table.
	for _, r := range records {
		if r.value(table) != c.Value {
			continue
		}
		if err := d.removeRecord(ctx, dev, table, r.RecNo); err != nil {
			return err
		}
	}
	return nil
}

// RemoveAll clears the full table for a type.
func (d *Driver) RemoveAll(ctx context.Context, dev *device.Device, t credential.Type) error {
	table, err := tableFor(dev, t)
	if err != nil {
		return err
	}

	q := url.Values{}
	q.Set("action", "clear")
	q.Set("name", table)

	resp, err := d.http.Post(ctx, dev, updaterPath+"?"+q.Encode(), nil, "")
	if err != nil {
		return err
	}
	return checkStatus(resp)
}

func (d *Driver) removeRecord(ctx context.Context, dev *device.Device, table string, recNo int) error {
	q := url.Values{}
	q.Set("action", "remove")
	q.Set("name", table)
	q.Set("recno", fmt.Sprintf("%d", recNo))

	resp, err := d.http.Post(ctx, dev, updaterPath+"?"+q.Encode(), nil, "")
	if err != nil {
		return err
	}
	return checkStatus(resp)
}

// TriggerRelay opens the door or barrier on a channel.
func (d *Driver) TriggerRelay(ctx context.Context, dev *device.Device, channel int) error {
	q := url.Values{}
	q.Set("action", "openDoor")
	q.Set("channel", fmt.Sprintf("%d", channel))

	resp, err := d.http.Post(ctx, dev, controlPath+"?"+q.Encode(), nil, "")
	if err != nil {
		return err
	}
	return checkStatus(resp)
}

// GetStatus probes the device and reads the door position where the
// device reports one.
func (d *Driver) GetStatus(ctx context.Context, dev *device.Device) (*driver.Status, error) {
	q := url.Values{}
	q.Set("action", "getDoorStatus")
	q.Set("channel", fmt.Sprintf("%d", dev.RelayChannel))

	resp, err := d.http.Get(ctx, dev, controlPath+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	if resp.Status != http.StatusOK {
		return &driver.Status{Online: false, DoorState: driver.DoorUnknown}, nil
	}

	status := &driver.Status{Online: true, DoorState: driver.DoorUnknown}
	var ds doorStatusResponse
	if err := xml.Unmarshal(resp.Body, &ds); err != nil {
		return status, nil
	}
	switch strings.ToLower(ds.Status) {
	case "open":
		status.DoorState = driver.DoorOpen
	case "closed", "close":
		status.DoorState = driver.DoorClosed
	}
	return status, nil
}

func checkStatus(resp *transport.Response) error {
	if resp.Status >= 200 && resp.Status < 300 {
		return nil
	}
	return fmt.Errorf("%w: http %d", driver.ErrDeviceRejected, resp.Status)
}
