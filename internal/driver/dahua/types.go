package dahua

import "encoding/xml"

// XML message shapes for the record finder protocol. Tables are
// cursor-paged: startFind returns a token and total count, doFind
// drains pages, stopFind releases the cursor.

type finderResponse struct {
	XMLName    xml.Name `xml:"FinderResponse"`
	Token      string   `xml:"Token"`
	TotalCount int      `xml:"TotalCount"`
}

type recordPage struct {
	XMLName xml.Name `xml:"Records"`
	Found   int      `xml:"Found"`
	Records []record `xml:"Record"`
}

type record struct {
	XMLName xml.Name `xml:"Record"`
	RecNo   int      `xml:"RecNo,omitempty"`
	CardNo  string   `xml:"CardNo,omitempty"`
	Plate   string   `xml:"PlateNumber,omitempty"`
	Note    string   `xml:"UserName,omitempty"`
}

type doorStatusResponse struct {
	XMLName xml.Name `xml:"Response"`
	Status  string   `xml:"DoorStatus"`
}
