package user

import "time"

type User struct {
	UserID     string    `json:"userId"`
	Username   string    `json:"username"`
	Password   string    `json:"-"`
	Avatar     string    `json:"avatar"`
	Role       string    `json:"role"`
	Tag        string    `json:"tag"`
	CreateTime time.Time `json:"createTime"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	User        User   `json:"user"`
}
