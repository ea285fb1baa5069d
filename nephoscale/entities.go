package nephoscale

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// NodeState is the lifecycle state of a cloud server. The API only
// distinguishes powered-on servers; everything else maps to unknown.
type NodeState string

const (
	NodeStateRunning NodeState = "running"
	NodeStateUnknown NodeState = "unknown"
)

var nodeStateMap = map[string]NodeState{
	"on":      NodeStateRunning,
	"off":     NodeStateUnknown,
	"unknown": NodeStateUnknown,
}

// locations are not tagged with a country by the API; the provider only
// operates in the US.
const locationCountry = "US"

// Node is a cloud server. ID is empty until provisioning has resolved
// the server's identity, see Driver.CreateNode.
type Node struct {
	ID         string
	Name       string
	Hostname   string
	State      NodeState
	PublicIPs  []string
	PrivateIPs []string
	Extra      NodeExtra
}

// NodeExtra carries the secondary server attributes the API reports.
// Nested display names are copied when present and left empty otherwise.
// ZoneData holds the zone record exactly as the API sent it.
type NodeExtra struct {
	Zone             string
	ZoneData         json.RawMessage
	ImageName        string
	ServiceType      string
	CreateTime       string
	NetworkPorts     json.RawMessage
	IsConsoleEnabled bool
}

// Image is a provider-owned server image catalog entry.
type Image struct {
	ID    string
	Name  string
	Extra ImageExtra
}

type ImageExtra struct {
	Architecture string
	Disks        json.RawMessage
	BillableType int64
	PCPUs        int64
	Cores        int64
	URI          string
	Storage      int64
}

// Size is a service type, the provider's term for a compute plan tier.
// Bandwidth is always zero; the API does not report it. Price is
// resolved through the driver's PriceLookup.
type Size struct {
	ID        string
	Name      string
	RAM       int64
	Disk      int64
	Bandwidth int64
	Price     float64
}

// Location is a datacenter.
type Location struct {
	ID      string
	Name    string
	Country string
}

type namedRecord struct {
	ID           json.Number `json:"id"`
	Name         string      `json:"name"`
	FriendlyName string      `json:"friendly_name"`
}

type nodeRecord struct {
	ID               json.Number     `json:"id"`
	Name             string          `json:"name"`
	Hostname         string          `json:"hostname"`
	PowerStatus      string          `json:"power_status"`
	IPAddresses      string          `json:"ipaddresses"`
	CreateTime       string          `json:"create_time"`
	NetworkPorts     json.RawMessage `json:"network_ports"`
	IsConsoleEnabled bool            `json:"is_console_enabled"`
	Zone             *zoneRecord     `json:"zone"`
	Image            *namedRecord    `json:"image"`
	ServiceType      *namedRecord    `json:"service_type"`
}

// zoneRecord keeps the raw zone payload alongside the decoded names so
// callers get the full record, not just the fields this package reads.
type zoneRecord struct {
	namedRecord
	raw json.RawMessage
}

func (z *zoneRecord) UnmarshalJSON(data []byte) error {
	z.raw = append(json.RawMessage{}, data...)
	return json.Unmarshal(data, &z.namedRecord)
}

type imageRecord struct {
	ID           json.Number     `json:"id"`
	FriendlyName string          `json:"friendly_name"`
	Architecture string          `json:"architecture"`
	Disks        json.RawMessage `json:"disks"`
	BillableType json.Number     `json:"billable_type"`
	PCPUs        json.Number     `json:"pcpus"`
	Cores        json.Number     `json:"cores"`
	URI          string          `json:"uri"`
	Storage      json.Number     `json:"storage"`
}

type sizeRecord struct {
	ID           json.Number `json:"id"`
	FriendlyName string      `json:"friendly_name"`
	RAM          json.Number `json:"ram"`
	Storage      json.Number `json:"storage"`
}

type locationRecord struct {
	ID   json.Number `json:"id"`
	Name string      `json:"name"`
}

// classifyAddresses splits the API's comma-separated address string
// into public and private lists. Addresses starting with 10. or 192.168
// are private, everything else is public. Empty input yields two empty
// lists, never nil.
func classifyAddresses(raw string) (public []string, private []string) {
	public, private = []string{}, []string{}
	if raw == "" {
		return public, private
	}

	for _, token := range strings.Split(raw, ",") {
		ip := strings.Replace(token, " ", "", -1)
		if ip == "" {
			continue
		}

		if strings.HasPrefix(ip, "10.") || strings.HasPrefix(ip, "192.168") {
			private = append(private, ip)
		} else {
			public = append(public, ip)
		}
	}

	return public, private
}

func (r *nodeRecord) toNode() *Node {
	state, ok := nodeStateMap[r.PowerStatus]
	if !ok {
		state = NodeStateUnknown
	}

	public, private := classifyAddresses(r.IPAddresses)

	extra := NodeExtra{
		CreateTime:       r.CreateTime,
		NetworkPorts:     r.NetworkPorts,
		IsConsoleEnabled: r.IsConsoleEnabled,
	}
	if r.Zone != nil {
		extra.Zone = r.Zone.Name
		extra.ZoneData = r.Zone.raw
	}
	if r.Image != nil {
		extra.ImageName = r.Image.FriendlyName
	}
	if r.ServiceType != nil {
		extra.ServiceType = r.ServiceType.FriendlyName
	}

	return &Node{
		ID:         r.ID.String(),
		Name:       r.Name,
		Hostname:   r.Hostname,
		State:      state,
		PublicIPs:  public,
		PrivateIPs: private,
		Extra:      extra,
	}
}

func (r *imageRecord) toImage() *Image {
	billableType, _ := r.BillableType.Int64()
	pcpus, _ := r.PCPUs.Int64()
	cores, _ := r.Cores.Int64()
	storage, _ := r.Storage.Int64()

	return &Image{
		ID:   r.ID.String(),
		Name: r.FriendlyName,
		Extra: ImageExtra{
			Architecture: r.Architecture,
			Disks:        r.Disks,
			BillableType: billableType,
			PCPUs:        pcpus,
			Cores:        cores,
			URI:          r.URI,
			Storage:      storage,
		},
	}
}

func (r *sizeRecord) toSize() *Size {
	ram, _ := r.RAM.Int64()
	storage, _ := r.Storage.Int64()

	return &Size{
		ID:   r.ID.String(),
		Name: r.FriendlyName,
		RAM:  ram,
		Disk: storage,
	}
}

func (r *locationRecord) toLocation() *Location {
	return &Location{
		ID:      r.ID.String(),
		Name:    r.Name,
		Country: locationCountry,
	}
}

func decodeNodes(data json.RawMessage) ([]*Node, error) {
	records := []nodeRecord{}
	if err := decodeRecords(data, &records, "server"); err != nil {
		return nil, err
	}

	nodes := make([]*Node, 0, len(records))
	for i := range records {
		nodes = append(nodes, records[i].toNode())
	}
	return nodes, nil
}

func decodeImages(data json.RawMessage) ([]*Image, error) {
	records := []imageRecord{}
	if err := decodeRecords(data, &records, "image"); err != nil {
		return nil, err
	}

	images := make([]*Image, 0, len(records))
	for i := range records {
		images = append(images, records[i].toImage())
	}
	return images, nil
}

func decodeSizes(data json.RawMessage) ([]*Size, error) {
	records := []sizeRecord{}
	if err := decodeRecords(data, &records, "service type"); err != nil {
		return nil, err
	}

	sizes := make([]*Size, 0, len(records))
	for i := range records {
		sizes = append(sizes, records[i].toSize())
	}
	return sizes, nil
}

func decodeLocations(data json.RawMessage) ([]*Location, error) {
	records := []locationRecord{}
	if err := decodeRecords(data, &records, "datacenter"); err != nil {
		return nil, err
	}

	locations := make([]*Location, 0, len(records))
	for i := range records {
		locations = append(locations, records[i].toLocation())
	}
	return locations, nil
}

// decodeRecords fails loudly on structurally invalid data instead of
// propagating partial records. A missing data payload is an empty list.
func decodeRecords(data json.RawMessage, records interface{}, kind string) error {
	if len(data) == 0 {
		return nil
	}

	err := json.Unmarshal(data, records)
	return errors.Wrapf(err, "couldn't decode %s records", kind)
}
