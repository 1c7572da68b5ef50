package models

import (
	"database/sql/driver"
	"encoding/json"
	"strings"
)

// Address 收货地址值对象，以 JSON 序列化存储
type Address struct {
	Name       string `json:"name,omitempty"`
	Company    string `json:"company,omitempty"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

// IsZero 判断地址是否为空
func (a Address) IsZero() bool {
	return a == Address{}
}

// Equal 按字段逐一比较（忽略首尾空白）
func (a Address) Equal(other Address) bool {
	return a.normalized() == other.normalized()
}

func (a Address) normalized() Address {
	a.Name = strings.TrimSpace(a.Name)
	a.Company = strings.TrimSpace(a.Company)
	a.Line1 = strings.TrimSpace(a.Line1)
	a.Line2 = strings.TrimSpace(a.Line2)
	a.City = strings.TrimSpace(a.City)
	a.Region = strings.TrimSpace(a.Region)
	a.PostalCode = strings.TrimSpace(a.PostalCode)
	a.Country = strings.TrimSpace(a.Country)
	a.Phone = strings.TrimSpace(a.Phone)
	return a
}

// Value 用于数据库写入
func (a Address) Value() (driver.Value, error) {
	if a.IsZero() {
		return nil, nil
	}
	return json.Marshal(a)
}

// Scan 用于数据库读取
func (a *Address) Scan(value interface{}) error {
	if value == nil {
		*a = Address{}
		return nil
	}
	bytes, ok := normalizeJSONBytes(value)
	if !ok {
		return nil
	}
	if len(bytes) == 0 {
		*a = Address{}
		return nil
	}
	return json.Unmarshal(bytes, a)
}
