package api

import (
	"fmt"

	"SpeseTracker/internal/serviceiface"
)

type GatewayService struct {
	config map[string]interface{}
}

func NewGatewayService(cfg map[string]interface{}) serviceiface.Service {
	return &GatewayService{config: cfg}
}

func (s *GatewayService) Name() string {
	return "gateway"
}

func (s *GatewayService) Start() error {
	port := "8081"
	if s.config != nil {
		if v, ok := s.config["port"]; ok && v != nil {
			port = fmt.Sprintf("%v", v)
		}
	}
	go StartGateway(port)
	return nil
}

func (s *GatewayService) Stop() error {
	return nil
}
