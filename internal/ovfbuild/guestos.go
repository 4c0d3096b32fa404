package ovfbuild

// guestOSEntry pairs the CIM OperatingSystemSection numeric ID with the
// vmw:osType string VMware's own OVF tooling emits for a given VMX guestOS
// tag. The table covers the guest tags VMware Workstation ships by default;
// unrecognized tags fall back to "otherGuest64" (CIM id 102), which every
// OVF-consuming hypervisor accepts without rejecting the import.
type guestOSEntry struct {
	cimID  int
	osType string
}

var guestOSTable = map[string]guestOSEntry{
	"ubuntu-64":        {94, "ubuntu64Guest"},
	"ubuntu":           {93, "ubuntuGuest"},
	"debian10-64":      {96, "debian10_64Guest"},
	"debian10":         {95, "debian10Guest"},
	"centos7-64":       {107, "centos7_64Guest"},
	"centos8-64":       {108, "centos8_64Guest"},
	"rhel7-64":         {104, "rhel7_64Guest"},
	"rhel8-64":         {106, "rhel8_64Guest"},
	"windows9-64":      {103, "windows9_64Guest"},
	"windows9":         {101, "windows9Guest"},
	"windows8-64":      {92, "windows8_64Guest"},
	"windows7-64":      {90, "windows7_64Guest"},
	"windows7":         {89, "windows7Guest"},
	"winnetstandard":   {58, "winNetStandardGuest"},
	"winnetstandard-64": {59, "winNetStandard64Guest"},
	"other-64":         {102, "otherGuest64"},
	"other":            {99, "otherGuest"},
	"freebsd-64":       {78, "freebsd64Guest"},
	"freebsd":          {77, "freebsdGuest"},
}

// lookupGuestOS resolves a VMX guestOS tag to a (CIM id, vmw:osType) pair,
// falling back to "other (64-bit)" for unrecognized tags.
func lookupGuestOS(guestOS string) (int, string) {
	if e, ok := guestOSTable[guestOS]; ok {
		return e.cimID, e.osType
	}
	return guestOSTable["other-64"].cimID, guestOSTable["other-64"].osType
}
