/*
 * @Description: 红墨命令行入口
 * @Author: 安知鱼
 * @Date: 2026-09-10 14:20:05
 * @LastEditTime: 2026-09-12 19:40:11
 * @LastEditors: 安知鱼
 */
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// @title           RedInk API
// @version         1.0
// @description     红墨 AI 图文生成接口文档
// @BasePath        /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
