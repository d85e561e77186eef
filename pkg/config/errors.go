package config

import "errors"

// 配置包专用错误定义
var (
	// ErrConfigNotFound 配置文件未找到
	ErrConfigNotFound = errors.New("config: file not found")
	// ErrConfigReadFailed 配置读取失败
	ErrConfigReadFailed = errors.New("config: read failed")
	// ErrConfigParseFailed 配置解析失败
	ErrConfigParseFailed = errors.New("config: parse failed")
	// ErrInvalidSettings 配置内容非法
	ErrInvalidSettings = errors.New("config: invalid settings")
)
