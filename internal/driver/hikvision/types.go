package hikvision

// JSON ISAPI message shapes. Only the fields we read or write are
// declared; devices send plenty more.

type userSearchRequest struct {
	UserInfoSearchCond userSearchCond `json:"UserInfoSearchCond"`
}

type userSearchCond struct {
	SearchID             string `json:"searchID"`
	SearchResultPosition int    `json:"searchResultPosition"`
	MaxResults           int    `json:"maxResults"`
}

type userSearchResponse struct {
	UserInfoSearch userSearchResult `json:"UserInfoSearch"`
}

type userSearchResult struct {
	SearchID           string     `json:"searchID"`
	ResponseStatusStrg string     `json:"responseStatusStrg"`
	NumOfMatches       int        `json:"numOfMatches"`
	TotalMatches       int        `json:"totalMatches"`
	UserInfo           []userInfo `json:"UserInfo"`
}

type userInfo struct {
	EmployeeNo string `json:"employeeNo"`
	Name       string `json:"name,omitempty"`
	UserType   string `json:"userType,omitempty"`
}

type userRecordRequest struct {
	UserInfo userInfo `json:"UserInfo"`
}

type userDeleteRequest struct {
	UserInfoDelCond userDeleteCond `json:"UserInfoDelCond"`
}

type userDeleteCond struct {
	EmployeeNoList []employeeNo `json:"EmployeeNoList"`
}

type employeeNo struct {
	EmployeeNo string `json:"employeeNo"`
}

type userDeleteAllRequest struct {
	UserInfoDetail userDeleteAllDetail `json:"UserInfoDetail"`
}

type userDeleteAllDetail struct {
	Mode string `json:"mode"`
}

type plateSearchRequest struct {
	LPSearchCond plateSearchCond `json:"LPSearchCond"`
}

type plateSearchCond struct {
	SearchID             string `json:"searchID"`
	SearchResultPosition int    `json:"searchResultPosition"`
	MaxResults           int    `json:"maxResults"`
}

type plateSearchResponse struct {
	LPListAuditSearch plateSearchResult `json:"LPListAuditSearch"`
}

type plateSearchResult struct {
	ResponseStatusStrg   string      `json:"responseStatusStrg"`
	NumOfMatches         int         `json:"numOfMatches"`
	TotalMatches         int         `json:"totalMatches"`
	LicensePlateInfoList []plateInfo `json:"LicensePlateInfoList"`
}

type plateInfo struct {
	LicensePlate string `json:"LicensePlate"`
	ListType     string `json:"listType,omitempty"`
}

type plateRecordRequest struct {
	LicensePlateInfoList []plateInfo `json:"LicensePlateInfoList"`
}

type plateDeleteRequest struct {
	LPDeleteCond plateDeleteCond `json:"LPDeleteCond"`
}

type plateDeleteCond struct {
	LicensePlateList []plateInfo `json:"LicensePlateList"`
}

type remoteControlRequest struct {
	RemoteControlDoor remoteControlDoor `json:"RemoteControlDoor"`
}

type remoteControlDoor struct {
	Cmd string `json:"cmd"`
}

type doorStatusResponse struct {
	DoorStatus doorStatus `json:"DoorStatus"`
}

type doorStatus struct {
	Status string `json:"status"`
}
