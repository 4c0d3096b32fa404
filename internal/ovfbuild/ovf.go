// Package ovfbuild renders the OVF XML descriptor (C7, external
// collaborator per spec.md §4.7): envelope, disk and network sections, and
// the virtual hardware item list, from the orchestrator's VM and per-disk
// inputs.
package ovfbuild

import (
	"encoding/xml"
	"fmt"
)

const (
	bytesPerGiB = 1 << 30

	resourceTypeCPU        = 3
	resourceTypeMemory     = 4
	resourceTypeSCSI       = 6
	resourceTypeDisk       = 17
	resourceTypeEthernet   = 10
	scsiControllerSubtype  = "lsilogic"
	ethernetAdapterSubtype = "E1000"
	virtualSystemType      = "vmx-21"
	vmdkStreamFormat       = "http://www.vmware.com/interfaces/specifications/vmdk.html#streamOptimized"
)

// Disk is one exported disk's contribution to the OVF descriptor.
type Disk struct {
	DiskID         string
	FileRef        string
	FileName       string // e.g. "myvm-disk1.vmdk"
	CapacityBytes  int64
	CompressedSize int64
}

// VM is the set of inputs the orchestrator supplies to describe the virtual
// machine being exported.
type VM struct {
	Name     string
	GuestOS  string // VMX guestOS tag, e.g. "ubuntu-64"
	NumCPUs  int
	MemoryMB int
	Networks []string
	Disks    []Disk
}

// Build renders the complete OVF XML document for vm.
func Build(vm VM) ([]byte, error) {
	if vm.NumCPUs <= 0 {
		return nil, fmt.Errorf("ovf: invalid CPU count %d", vm.NumCPUs)
	}
	if vm.MemoryMB <= 0 {
		return nil, fmt.Errorf("ovf: invalid memory size %d MB", vm.MemoryMB)
	}

	env := buildEnvelope(vm)

	out, err := xml.MarshalIndent(env, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("ovf: marshal envelope: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

// --- XML document tree ---------------------------------------------------

type envelope struct {
	XMLName xml.Name `xml:"ovf:Envelope"`
	XMLNSOvf string  `xml:"xmlns:ovf,attr"`
	XMLNSRasd string `xml:"xmlns:rasd,attr"`
	XMLNSVssd string `xml:"xmlns:vssd,attr"`
	XMLNSVmw  string `xml:"xmlns:vmw,attr"`
	XMLNSXsi  string `xml:"xmlns:xsi,attr"`

	References    references    `xml:"ovf:References"`
	DiskSection   diskSection   `xml:"ovf:DiskSection"`
	NetworkSection networkSection `xml:"ovf:NetworkSection"`
	VirtualSystem virtualSystem `xml:"ovf:VirtualSystem"`
}

type references struct {
	Files []fileRef `xml:"ovf:File"`
}

type fileRef struct {
	Href string `xml:"ovf:href,attr"`
	ID   string `xml:"ovf:id,attr"`
	Size int64  `xml:"ovf:size,attr"`
}

type diskSection struct {
	Info  string     `xml:"ovf:Info"`
	Disks []diskElem `xml:"ovf:Disk"`
}

type diskElem struct {
	DiskID                  string `xml:"ovf:diskId,attr"`
	FileRef                 string `xml:"ovf:fileRef,attr"`
	Capacity                int64  `xml:"ovf:capacity,attr"`
	CapacityAllocationUnits string `xml:"ovf:capacityAllocationUnits,attr"`
	Format                  string `xml:"ovf:format,attr"`
}

type networkSection struct {
	Info     string         `xml:"ovf:Info"`
	Networks []networkEntry `xml:"ovf:Network"`
}

type networkEntry struct {
	Name string `xml:"ovf:name,attr"`
	Info string `xml:"ovf:Description"`
}

type virtualSystem struct {
	ID                    string                `xml:"ovf:id,attr"`
	Info                  string                `xml:"ovf:Info"`
	Name                  string                `xml:"ovf:Name"`
	OperatingSystemSection operatingSystemSection `xml:"ovf:OperatingSystemSection"`
	VirtualHardwareSection virtualHardwareSection `xml:"ovf:VirtualHardwareSection"`
}

type operatingSystemSection struct {
	ID      int    `xml:"ovf:id,attr"`
	OSType  string `xml:"vmw:osType,attr"`
	Info    string `xml:"ovf:Info"`
	Description string `xml:"ovf:Description"`
}

type virtualHardwareSection struct {
	Info   string        `xml:"ovf:Info"`
	System systemElem    `xml:"System"`
	Items  []item        `xml:"ovf:Item"`
}

type systemElem struct {
	ElementName             string `xml:"vssd:ElementName"`
	InstanceID              int    `xml:"vssd:InstanceID"`
	VirtualSystemIdentifier string `xml:"vssd:VirtualSystemIdentifier"`
	VirtualSystemType       string `xml:"vssd:VirtualSystemType"`
}

type item struct {
	AllocationUnits string `xml:"rasd:AllocationUnits,omitempty"`
	Description     string `xml:"rasd:Description,omitempty"`
	ElementName     string `xml:"rasd:ElementName"`
	InstanceID      int    `xml:"rasd:InstanceID"`
	Parent          *int   `xml:"rasd:Parent,omitempty"`
	ResourceType    int    `xml:"rasd:ResourceType"`
	ResourceSubType string `xml:"rasd:ResourceSubType,omitempty"`
	HostResource    string `xml:"rasd:HostResource,omitempty"`
	VirtualQuantity *int64 `xml:"rasd:VirtualQuantity,omitempty"`
	AddressOnParent string `xml:"rasd:AddressOnParent,omitempty"`
}

func buildEnvelope(vm VM) envelope {
	env := envelope{
		XMLNSOvf:  "http://schemas.dmtf.org/ovf/envelope/1",
		XMLNSRasd: "http://schemas.dmtf.org/wbem/wscim/1/cim-schema/2/CIM_ResourceAllocationSettingData",
		XMLNSVssd: "http://schemas.dmtf.org/wbem/wscim/1/cim-schema/2/CIM_VirtualSystemSettingData",
		XMLNSVmw:  "http://www.vmware.com/schema/ovf",
		XMLNSXsi:  "http://www.w3.org/2001/XMLSchema-instance",
	}

	for _, d := range vm.Disks {
		env.References.Files = append(env.References.Files, fileRef{
			Href: d.FileName,
			ID:   d.FileRef,
			Size: d.CompressedSize,
		})
		env.DiskSection.Disks = append(env.DiskSection.Disks, diskElem{
			DiskID:                  d.DiskID,
			FileRef:                 d.FileRef,
			Capacity:                d.CapacityBytes / bytesPerGiB,
			CapacityAllocationUnits: "byte * 2^30",
			Format:                  vmdkStreamFormat,
		})
	}
	env.DiskSection.Info = "Virtual disk information"

	networks := vm.Networks
	if len(networks) == 0 {
		networks = []string{"VM Network"}
	}
	env.NetworkSection.Info = "The list of logical networks"
	for _, n := range networks {
		env.NetworkSection.Networks = append(env.NetworkSection.Networks, networkEntry{Name: n, Info: n})
	}

	osID, osType := lookupGuestOS(vm.GuestOS)

	env.VirtualSystem = virtualSystem{
		ID:   vm.Name,
		Info: "A virtual machine",
		Name: vm.Name,
		OperatingSystemSection: operatingSystemSection{
			ID:          osID,
			OSType:      osType,
			Info:        "The kind of installed guest operating system",
			Description: vm.GuestOS,
		},
	}

	vh := &env.VirtualSystem.VirtualHardwareSection
	vh.Info = "Virtual hardware requirements"
	vh.System = systemElem{
		ElementName:             "Virtual Hardware Family",
		InstanceID:              0,
		VirtualSystemIdentifier: vm.Name,
		VirtualSystemType:       virtualSystemType,
	}

	instanceID := 1

	cpuQty := int64(vm.NumCPUs)
	vh.Items = append(vh.Items, item{
		ElementName:     fmt.Sprintf("%d virtual CPU(s)", vm.NumCPUs),
		InstanceID:      instanceID,
		ResourceType:    resourceTypeCPU,
		VirtualQuantity: &cpuQty,
	})
	instanceID++

	memQty := int64(vm.MemoryMB)
	vh.Items = append(vh.Items, item{
		AllocationUnits: "byte * 2^20",
		ElementName:     fmt.Sprintf("%dMB of memory", vm.MemoryMB),
		InstanceID:      instanceID,
		ResourceType:    resourceTypeMemory,
		VirtualQuantity: &memQty,
	})
	instanceID++

	scsiInstanceID := instanceID
	vh.Items = append(vh.Items, item{
		ElementName:     "SCSI Controller",
		InstanceID:      scsiInstanceID,
		ResourceType:    resourceTypeSCSI,
		ResourceSubType: scsiControllerSubtype,
	})
	instanceID++

	for i, d := range vm.Disks {
		parent := scsiInstanceID
		vh.Items = append(vh.Items, item{
			ElementName:     fmt.Sprintf("Hard disk %d", i+1),
			InstanceID:      instanceID,
			Parent:          &parent,
			ResourceType:    resourceTypeDisk,
			HostResource:    "ovf:/disk/" + d.DiskID,
			AddressOnParent: fmt.Sprintf("%d", i),
		})
		instanceID++
	}

	vh.Items = append(vh.Items, item{
		ElementName:     "Network adapter",
		InstanceID:      instanceID,
		ResourceType:    resourceTypeEthernet,
		ResourceSubType: ethernetAdapterSubtype,
	})

	return env
}
