//go:build !linux

package app

import logx "livescout/pkg/logx"

func sdNotifyReady(logx.Logger)    {}
func sdNotifyStopping(logx.Logger) {}
