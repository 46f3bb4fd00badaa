package httpserver

import (
	"errors"
	"strings"

	"github.com/cyprienhm/http-file-exchange/internal/codec"
	"github.com/cyprienhm/http-file-exchange/internal/files"
	"github.com/cyprienhm/http-file-exchange/internal/httpconstants"
)

type httpResponse struct {
	status  int
	reason  string
	headers []codec.Header
	body    []byte
}

func status(code int) httpResponse {
	return httpResponse{status: code, reason: httpconstants.ReasonPhrase(code)}
}

func serverError() httpResponse {
	return status(httpconstants.STATUS_500)
}

func (s *Server) processRequest(request *codec.Request) httpResponse {
	switch strings.ToUpper(request.Method) {
	case httpconstants.METHOD_GET:
		return s.processGET(request)
	case httpconstants.METHOD_PUT:
		return s.processPUT(request)
	}
	s.logger.Printf("did not recognize method: %s", request.Method)
	response := status(httpconstants.STATUS_405)
	response.headers = []codec.Header{{Name: httpconstants.HEADER_ALLOW, Value: httpconstants.ALLOWED_METHODS}}
	return response
}

func (s *Server) processGET(request *codec.Request) httpResponse {
	fileContents, err := s.store.Get(request.Target)
	if err != nil {
		return s.fileError(request, err)
	}
	response := status(httpconstants.STATUS_200)
	response.body = fileContents
	return response
}

func (s *Server) processPUT(request *codec.Request) httpResponse {
	created, err := s.store.Put(request.Target, request.Body)
	if err != nil {
		return s.fileError(request, err)
	}
	s.logger.Printf("wrote %d bytes to %s", len(request.Body), request.Target)
	if created {
		return status(httpconstants.STATUS_201)
	}
	return status(httpconstants.STATUS_200)
}

func (s *Server) fileError(request *codec.Request, err error) httpResponse {
	switch {
	case errors.Is(err, files.ErrNotFound):
		return status(httpconstants.STATUS_404)
	case errors.Is(err, files.ErrOutsideRoot):
		s.logger.Printf("refused %s %s: %v", request.Method, request.Target, err)
		return status(httpconstants.STATUS_403)
	}
	s.logger.Printf("%s %s failed: %v", request.Method, request.Target, err)
	return serverError()
}
